package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vladislavdragonenkov/ordertracker/internal/domain"
)

func TestTimelineEvent_Normalized(t *testing.T) {
	empty := domain.TimelineEvent{OrderID: 1}.Normalized()
	assert.NotEmpty(t, empty.ID)
	assert.Equal(t, time.UTC, empty.Occurred.Location())
	assert.WithinDuration(t, time.Now(), empty.Occurred, time.Second)

	moscow := time.FixedZone("MSK", 3*60*60)
	at := time.Date(2025, 9, 16, 13, 0, 0, 0, moscow)
	kept := domain.TimelineEvent{ID: "evt-1", Occurred: at}.Normalized()
	assert.Equal(t, "evt-1", kept.ID)
	assert.True(t, kept.Occurred.Equal(at))
	assert.Equal(t, time.UTC, kept.Occurred.Location())
}
