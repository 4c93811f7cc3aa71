package storage

import (
	"context"

	"github.com/avelinov/salonbook/libs/db"
)

// Notification is one delivery attempt, logged whether or not the send
// succeeded.
type Notification struct {
	EventID         string
	Kind            string
	RecipientChatID int64
	Body            string
	Delivered       bool
	ProviderID      string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (event_id, kind, recipient_chat_id, body, delivered, provider_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, n.EventID, n.Kind, n.RecipientChatID, n.Body, n.Delivered, n.ProviderID)
	return err
}

// AdminChatIDs returns the full admin recipient set.
func (r *Repository) AdminChatIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT chat_id FROM admins ORDER BY chat_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return ids, nil
}
