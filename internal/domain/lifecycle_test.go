package domain

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from OrderStatus
		t    Transition
		want bool
	}{
		{OrderStatusWaiting, TransitionStart, true},
		{OrderStatusWaiting, TransitionComplete, false},
		{OrderStatusWaiting, TransitionCancel, true},
		{OrderStatusWaiting, TransitionUncancel, false},
		{OrderStatusInProgress, TransitionStart, false},
		{OrderStatusInProgress, TransitionComplete, true},
		{OrderStatusInProgress, TransitionCancel, true},
		{OrderStatusCompleted, TransitionStart, false},
		{OrderStatusCompleted, TransitionComplete, false},
		{OrderStatusCompleted, TransitionCancel, false},
		{OrderStatusCompleted, TransitionUncancel, false},
		{OrderStatusCancelled, TransitionCancel, false},
		{OrderStatusCancelled, TransitionStart, false},
		{OrderStatusCancelled, TransitionUncancel, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.t), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.t); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.t, got, tt.want)
			}
		})
	}
}

func TestApply_CancelUncancelRestoresPreviousStatus(t *testing.T) {
	order := Order{ID: 1, Status: OrderStatusInProgress}
	before := order

	if err := order.Apply(TransitionCancel); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if order.Status != OrderStatusCancelled || order.PreviousStatus != OrderStatusInProgress {
		t.Fatalf("unexpected state after cancel: %+v", order)
	}

	if err := order.Apply(TransitionUncancel); err != nil {
		t.Fatalf("uncancel failed: %v", err)
	}
	if order.Status != before.Status || order.PreviousStatus != before.PreviousStatus {
		t.Fatalf("expected %+v after round trip, got %+v", before, order)
	}
}

func TestApply_UncancelWithoutRecordedStatus(t *testing.T) {
	order := Order{ID: 1, Status: OrderStatusCancelled}

	if err := order.Apply(TransitionUncancel); !IsInvalidTransition(err) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if order.Status != OrderStatusCancelled {
		t.Fatalf("status must stay cancelled, got %s", order.Status)
	}
}

func TestApply_InvalidLeavesOrderUntouched(t *testing.T) {
	order := Order{ID: 1, Status: OrderStatusWaiting}

	if err := order.Apply(TransitionComplete); !IsInvalidTransition(err) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if order.Status != OrderStatusWaiting {
		t.Fatalf("status changed to %s", order.Status)
	}
}
