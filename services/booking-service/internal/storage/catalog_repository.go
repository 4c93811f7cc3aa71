package storage

import (
	"context"
	"strings"

	"github.com/avelinov/salonbook/libs/db"
	"github.com/avelinov/salonbook/services/booking-service/internal/model"
)

type CatalogRepository struct {
	pool *db.Pool
}

func NewCatalogRepository(pool *db.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, duration_minutes, price
		FROM services
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.DurationMinutes, &s.Price); err != nil {
			return nil, err
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

func (r *CatalogRepository) GetService(ctx context.Context, id string) (model.Service, error) {
	var s model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, duration_minutes, price
		FROM services
		WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.DurationMinutes, &s.Price)
	return s, err
}

// ListProviders returns providers, active ones only when activeOnly is set.
// Inactive providers stay out of the booking flow but keep their history.
func (r *CatalogRepository) ListProviders(ctx context.Context, activeOnly bool) ([]model.Provider, error) {
	q := `SELECT id, name, active FROM providers`
	if activeOnly {
		q += ` WHERE active`
	}
	q += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var providers []model.Provider
	for rows.Next() {
		var p model.Provider
		if err := rows.Scan(&p.ID, &p.Name, &p.Active); err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

func (r *CatalogRepository) GetProvider(ctx context.Context, id string) (model.Provider, error) {
	var p model.Provider
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, active
		FROM providers
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Active)
	return p, err
}

// Seed inserts the default catalog when the tables are empty.
func (r *CatalogRepository) Seed(ctx context.Context) error {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM services`).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		defaults := []model.Service{
			{Name: "Classic massage", DurationMinutes: 60, Price: 1000},
			{Name: "Sports massage", DurationMinutes: 60, Price: 1000},
			{Name: "Percussion massage", DurationMinutes: 60, Price: 1500},
			{Name: "Cupping massage", DurationMinutes: 45, Price: 1500},
		}
		for _, s := range defaults {
			if _, err := r.pool.Exec(ctx, `
				INSERT INTO services (name, duration_minutes, price)
				VALUES ($1, $2, $3)
				ON CONFLICT (name) DO NOTHING
			`, s.Name, s.DurationMinutes, s.Price); err != nil {
				return err
			}
		}
	}

	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM providers`).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		for _, name := range []string{"Ilya", "Bogdan"} {
			if _, err := r.pool.Exec(ctx, `
				INSERT INTO providers (name) VALUES ($1)
				ON CONFLICT (name) DO NOTHING
			`, name); err != nil {
				return err
			}
		}
	}
	return nil
}

// EnsureAdmin registers an operator recipient. Usernames are normalized to
// lower case here, at write time, so recipient lookups never case-fold.
func (r *CatalogRepository) EnsureAdmin(ctx context.Context, chatID int64, username, name string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO admins (chat_id, username, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (chat_id) DO UPDATE SET username = EXCLUDED.username, name = EXCLUDED.name
	`, chatID, strings.ToLower(strings.TrimSpace(username)), name)
	return err
}
