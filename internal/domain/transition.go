package domain

// Allowed status changes. Anything not listed is rejected.
var transitions = map[Status][]Status{
	StatusWaiting: {StatusInvited, StatusCancelled},
	StatusInvited: {StatusAccepted, StatusDeclined},
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CheckTransition returns a *TransitionError when from -> to is not allowed.
func CheckTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusDeclined || s == StatusCancelled
}

// CounterDelta is the (waiting, attendee) counter change caused by an allowed
// transition. waitingCount drops as soon as an entry leaves waiting;
// attendeeCount only grows on invited -> accepted.
func CounterDelta(from, to Status) (waiting, attendee int) {
	if from == StatusWaiting && to != StatusWaiting {
		waiting = -1
	}
	if from == StatusInvited && to == StatusAccepted {
		attendee = 1
	}
	return waiting, attendee
}
