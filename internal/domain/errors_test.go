package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsInvalidTransition(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "invalid transition error",
			err:  ErrInvalidTransition,
			want: true,
		},
		{
			name: "wrapped invalid transition error",
			err:  fmt.Errorf("complete order 3: %w", ErrInvalidTransition),
			want: true,
		},
		{
			name: "other error",
			err:  ErrOrderNotFound,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsInvalidTransition(tt.err)
			if got != tt.want {
				t.Errorf("IsInvalidTransition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsParseFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "parse error",
			err:  fmt.Errorf("order2.xml: %w", ErrParse),
			want: true,
		},
		{
			name: "unsupported extension",
			err:  ErrUnsupportedFile,
			want: true,
		},
		{
			name: "unknown type joined",
			err:  errors.Join(ErrUnknownOrderType, errors.New("extra context")),
			want: true,
		},
		{
			name: "persistence error",
			err:  ErrPersistenceWrite,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsParseFailure(tt.err)
			if got != tt.want {
				t.Errorf("IsParseFailure() = %v, want %v", got, tt.want)
			}
		})
	}
}
