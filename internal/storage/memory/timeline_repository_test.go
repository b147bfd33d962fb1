package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ordertracker/internal/domain"
)

func TestTimelineRepository_AppendAndList(t *testing.T) {
	repo := NewTimelineRepository()
	base := time.Date(2025, 9, 16, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Append(domain.TimelineEvent{OrderID: 1, Type: domain.TimelineOrderChanged, Status: domain.OrderStatusInProgress, Occurred: base.Add(time.Minute)}))
	require.NoError(t, repo.Append(domain.TimelineEvent{OrderID: 1, Type: domain.TimelineOrderAdded, Status: domain.OrderStatusWaiting, Occurred: base}))
	require.NoError(t, repo.Append(domain.TimelineEvent{OrderID: 2, Type: domain.TimelineOrderAdded, Occurred: base}))

	events, err := repo.List(1)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.TimelineOrderAdded, events[0].Type)
	assert.Equal(t, domain.OrderStatusInProgress, events[1].Status)

	events[0].Type = "mutated"
	again, err := repo.List(1)
	require.NoError(t, err)
	assert.Equal(t, domain.TimelineOrderAdded, again[0].Type)

	empty, err := repo.List(42)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestTimelineRepository_SameTimestampKeepsAppendOrder(t *testing.T) {
	repo := NewTimelineRepository()
	at := time.Date(2025, 9, 16, 10, 0, 0, 0, time.UTC)

	for _, status := range []domain.OrderStatus{domain.OrderStatusWaiting, domain.OrderStatusInProgress, domain.OrderStatusCompleted} {
		require.NoError(t, repo.Append(domain.TimelineEvent{OrderID: 7, Status: status, Occurred: at}))
	}

	events, err := repo.List(7)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, domain.OrderStatusWaiting, events[0].Status)
	assert.Equal(t, domain.OrderStatusInProgress, events[1].Status)
	assert.Equal(t, domain.OrderStatusCompleted, events[2].Status)
}

func TestTimelineRepository_FillsMissingIDAndTime(t *testing.T) {
	repo := NewTimelineRepository()
	require.NoError(t, repo.Append(domain.TimelineEvent{OrderID: 3, Type: domain.TimelineOrderAdded}))

	events, err := repo.List(3)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ID)
	assert.WithinDuration(t, time.Now(), events[0].Occurred, time.Second)
}
