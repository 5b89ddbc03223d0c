package models

type TripStatus string

const (
	StatusNone      TripStatus = ""
	StatusSearching TripStatus = "searching"
	StatusAssigned  TripStatus = "assigned"
	StatusOngoing   TripStatus = "ongoing"
	StatusCompleted TripStatus = "completed"
	StatusCancelled TripStatus = "cancelled"
)

// AllowedTransitions is the trip state machine. Terminal states have no entry.
var AllowedTransitions = map[TripStatus][]TripStatus{
	StatusNone:      {StatusSearching, StatusAssigned},
	StatusSearching: {StatusAssigned, StatusCancelled},
	StatusAssigned:  {StatusOngoing, StatusCancelled},
	StatusOngoing:   {StatusCompleted},
}

func CanTransition(from, to TripStatus) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func (s TripStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}
