package entity

import "github.com/google/uuid"

// Service is a bookable offering. Its rows are owned by the catalogue, the
// booking engine only reads them.
type Service struct {
	BaseNoDelete
	ProviderID      uuid.UUID `db:"provider_id"`
	Name            string    `db:"name"`
	Price           Money     `db:"price"`
	DurationMinutes int       `db:"duration_minutes"`
	IsActive        bool      `db:"is_active"`
}
