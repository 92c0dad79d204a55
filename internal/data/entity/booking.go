package entity

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusPending     BookingStatus = "pending"
	BookingStatusConfirmed   BookingStatus = "confirmed"
	BookingStatusInProgress  BookingStatus = "in_progress"
	BookingStatusCompleted   BookingStatus = "completed"
	BookingStatusCancelled   BookingStatus = "cancelled"
	BookingStatusRejected    BookingStatus = "rejected"
	BookingStatusRescheduled BookingStatus = "rescheduled"
	BookingStatusPaid        BookingStatus = "paid"
	BookingStatusRefunded    BookingStatus = "refunded"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusInProgress,
		BookingStatusCompleted, BookingStatusCancelled, BookingStatusRejected,
		BookingStatusRescheduled, BookingStatusPaid, BookingStatusRefunded:
		return true
	}
	return false
}

// IsTerminal reports whether a booking in this status is read-only.
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingStatusCompleted, BookingStatusCancelled, BookingStatusRejected, BookingStatusRefunded:
		return true
	}
	return false
}

type Booking struct {
	Base
	BookingReference   string        `db:"booking_reference"`
	CustomerID         uuid.UUID     `db:"customer_id"`
	ProviderID         uuid.UUID     `db:"provider_id"`
	ServiceID          uuid.UUID     `db:"service_id"`
	BookingDate        time.Time     `db:"booking_date"`
	StartTime          time.Time     `db:"start_time"`
	EndTime            time.Time     `db:"end_time"`
	Status             BookingStatus `db:"status"`
	Notes              string        `db:"notes"`
	Price              Money         `db:"price"`
	CancellationReason *string       `db:"cancellation_reason"`
}

func (b *Booking) Duration() time.Duration {
	return b.EndTime.Sub(b.StartTime)
}

// IsParticipant reports whether id is the booking's customer or provider.
func (b *Booking) IsParticipant(id uuid.UUID) bool {
	return b.CustomerID == id || b.ProviderID == id
}

// CanBeViewedBy reports whether the actor may read the booking.
func (b *Booking) CanBeViewedBy(actor Actor) bool {
	return actor.IsAdmin() || b.IsParticipant(actor.ID)
}
