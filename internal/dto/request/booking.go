package request

// Dates use 2006-01-02 and times 15:04, both in UTC.
type CreateBookingRequest struct {
	ServiceID string `json:"service_id" validate:"required,uuid"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime   string `json:"end_time" validate:"required,datetime=15:04"`
	Notes     string `json:"notes" validate:"max=2000"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type RescheduleBookingRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" validate:"required,datetime=15:04"`
}

type UpdateBookingStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed in_progress completed cancelled rejected rescheduled paid refunded"`
}

type ListBookingsRequest struct {
	PaginatedRequest
	Status string `json:"status" validate:"omitempty,oneof=pending confirmed in_progress completed cancelled rejected rescheduled paid refunded"`
}
