package response

import (
	"time"

	"service-marketplace/internal/data/entity"
)

type BookingResponse struct {
	ID                 string               `json:"id"`
	BookingReference   string               `json:"booking_reference"`
	CustomerID         string               `json:"customer_id"`
	ProviderID         string               `json:"provider_id"`
	ServiceID          string               `json:"service_id"`
	BookingDate        string               `json:"booking_date"`
	StartTime          time.Time            `json:"start_time"`
	EndTime            time.Time            `json:"end_time"`
	Status             entity.BookingStatus `json:"status"`
	Notes              string               `json:"notes,omitempty"`
	Price              entity.Money         `json:"price"`
	CancellationReason *string              `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

func BookingToResponse(b *entity.Booking) *BookingResponse {
	return &BookingResponse{
		ID:                 b.ID.String(),
		BookingReference:   b.BookingReference,
		CustomerID:         b.CustomerID.String(),
		ProviderID:         b.ProviderID.String(),
		ServiceID:          b.ServiceID.String(),
		BookingDate:        b.BookingDate.Format(time.DateOnly),
		StartTime:          b.StartTime,
		EndTime:            b.EndTime,
		Status:             b.Status,
		Notes:              b.Notes,
		Price:              b.Price,
		CancellationReason: b.CancellationReason,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
}
