package syncstore

import "fmt"

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseSuccess
	PhaseFailure
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseSuccess:
		return "success"
	case PhaseFailure:
		return "failure"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// State is the observable status of one key.
//
// Optimistic marks a Success whose value is a local prediction not yet
// confirmed by the server. RolledBack marks a Failure raised by a mutation
// whose prediction was undone; Value then holds the restored value.
type State struct {
	Phase      Phase
	Value      any
	Message    string
	Code       int
	Optimistic bool
	RolledBack bool
}

func Idle() State { return State{Phase: PhaseIdle} }

func Loading() State { return State{Phase: PhaseLoading} }

func Success(value any) State { return State{Phase: PhaseSuccess, Value: value} }

func Failure(message string, code int) State {
	return State{Phase: PhaseFailure, Message: message, Code: code}
}

func (s State) String() string {
	switch s.Phase {
	case PhaseSuccess:
		if s.Optimistic {
			return "success(optimistic)"
		}
	case PhaseFailure:
		if s.RolledBack {
			return fmt.Sprintf("failure(rolled back): %s", s.Message)
		}
		return "failure: " + s.Message
	}
	return s.Phase.String()
}
