// Package memory содержит хранилища, живущие в памяти процесса.
package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/ordertracker/internal/domain"
)

// timelineRepository держит историю каждого заказа отсортированной по Occurred.
type timelineRepository struct {
	mu     sync.RWMutex
	events map[int][]domain.TimelineEvent
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepository{events: make(map[int][]domain.TimelineEvent)}
}

// Append вставляет событие после всех событий с тем же или более ранним временем.
func (r *timelineRepository) Append(event domain.TimelineEvent) error {
	event = event.Normalized()

	r.mu.Lock()
	defer r.mu.Unlock()

	events := r.events[event.OrderID]
	at := sort.Search(len(events), func(i int) bool {
		return events[i].Occurred.After(event.Occurred)
	})
	events = append(events, domain.TimelineEvent{})
	copy(events[at+1:], events[at:])
	events[at] = event
	r.events[event.OrderID] = events
	return nil
}

// List возвращает копию истории заказа; для неизвестного заказа - пустой срез.
func (r *timelineRepository) List(orderID int) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]domain.TimelineEvent{}, r.events[orderID]...), nil
}
