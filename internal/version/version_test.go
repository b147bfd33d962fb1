package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfo(t *testing.T) {
	v, c, d := Info()
	assert.NotEmpty(t, v)
	assert.NotEmpty(t, c)
	assert.NotEmpty(t, d)
	assert.Equal(t, v, GetVersion())
}

func TestString(t *testing.T) {
	s := String()
	assert.Contains(t, s, "order-tracker "+GetVersion())
	assert.Contains(t, s, "commit ")
	assert.Contains(t, s, "built ")
}

func TestFields(t *testing.T) {
	fields := Fields()
	assert.Equal(t, GetVersion(), fields["version"])
	assert.Contains(t, fields, "commit")
	assert.Contains(t, fields, "built")
}
