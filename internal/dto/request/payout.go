package request

type ScheduleBatchRequest struct {
	MinAgeHours *int `json:"min_age_hours,omitempty" validate:"omitempty,min=0,max=8760"`
}
