package entity

// bookingTransitions lists, per role and current status, the statuses the role
// may move a booking to. Admins are handled separately in CanTransition.
var bookingTransitions = map[Role]map[BookingStatus][]BookingStatus{
	RoleCustomer: {
		BookingStatusPending:     {BookingStatusCancelled},
		BookingStatusConfirmed:   {BookingStatusCancelled},
		BookingStatusRescheduled: {BookingStatusCancelled},
	},
	RoleProvider: {
		BookingStatusPending:     {BookingStatusConfirmed, BookingStatusRejected, BookingStatusCancelled},
		BookingStatusConfirmed:   {BookingStatusInProgress, BookingStatusCancelled},
		BookingStatusRescheduled: {BookingStatusConfirmed, BookingStatusRejected, BookingStatusCancelled},
		BookingStatusPaid:        {BookingStatusInProgress, BookingStatusCompleted, BookingStatusCancelled},
		BookingStatusInProgress:  {BookingStatusCompleted, BookingStatusCancelled},
	},
	RoleSystem: {
		BookingStatusConfirmed:   {BookingStatusPaid, BookingStatusRefunded},
		BookingStatusRescheduled: {BookingStatusRefunded},
		BookingStatusPaid:        {BookingStatusRefunded},
		BookingStatusInProgress:  {BookingStatusRefunded},
	},
}

// CanTransition reports whether role may move a booking from one status to another.
// Terminal statuses never transition, whoever asks.
func CanTransition(role Role, from, to BookingStatus) bool {
	if from.IsTerminal() || !from.Valid() || !to.Valid() || from == to {
		return false
	}
	if role == RoleAdmin {
		return true
	}
	for _, next := range bookingTransitions[role][from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses role may move a booking to from the given status.
func AllowedTransitions(role Role, from BookingStatus) []BookingStatus {
	if from.IsTerminal() {
		return nil
	}
	if role != RoleAdmin {
		return append([]BookingStatus(nil), bookingTransitions[role][from]...)
	}
	all := []BookingStatus{
		BookingStatusPending, BookingStatusConfirmed, BookingStatusInProgress,
		BookingStatusCompleted, BookingStatusCancelled, BookingStatusRejected,
		BookingStatusRescheduled, BookingStatusPaid, BookingStatusRefunded,
	}
	next := make([]BookingStatus, 0, len(all))
	for _, s := range all {
		if s != from {
			next = append(next, s)
		}
	}
	return next
}
