package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/ordertracker/internal/domain"
)

const (
	insertTimelineEventSQL = `
		INSERT INTO order_timeline_events (event_id, order_id, type, status, reason, occurred)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING`

	// id (BIGSERIAL) сохраняет порядок вставки для событий с одинаковым occurred.
	selectTimelineEventsSQL = `
		SELECT event_id, order_id, type, status, reason, occurred
		FROM order_timeline_events
		WHERE order_id = $1
		ORDER BY occurred, id`
)

// timelineRepository хранит историю заказов в таблице order_timeline_events.
type timelineRepository struct {
	db *sql.DB
}

// NewTimelineRepository создаёт PostgreSQL-реализацию TimelineRepository.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{db: store.DB()}
}

// Append идемпотентен по ID события.
func (r *timelineRepository) Append(event domain.TimelineEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	event = event.Normalized()
	_, err := r.db.ExecContext(ctx, insertTimelineEventSQL,
		event.ID, event.OrderID, event.Type, string(event.Status), event.Reason, event.Occurred)
	if err != nil {
		return fmt.Errorf("append timeline event for order %d: %w", event.OrderID, err)
	}
	return nil
}

func (r *timelineRepository) List(orderID int) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, selectTimelineEventsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("list timeline of order %d: %w", orderID, err)
	}
	defer rows.Close()

	history := []domain.TimelineEvent{}
	for rows.Next() {
		event, err := scanTimelineEvent(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read timeline of order %d: %w", orderID, err)
	}
	return history, nil
}

func scanTimelineEvent(rows *sql.Rows) (domain.TimelineEvent, error) {
	var (
		event  domain.TimelineEvent
		status string
	)
	if err := rows.Scan(&event.ID, &event.OrderID, &event.Type, &status, &event.Reason, &event.Occurred); err != nil {
		return domain.TimelineEvent{}, fmt.Errorf("scan timeline event: %w", err)
	}
	event.Status = domain.OrderStatus(status)
	return event, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
