package agent

// Status is the derived activity state of an agent session.
type Status string

const (
	StatusWorking Status = "WORKING"
	StatusWaiting Status = "WAITING"
	StatusError   Status = "ERROR"
	StatusIdle    Status = "IDLE"
)

// Tag returns the compact bracketed label used in list output.
func (s Status) Tag() string {
	switch s {
	case StatusWaiting:
		return "[WAIT]"
	case StatusError:
		return "[ERR]"
	case StatusIdle:
		return "[IDLE]"
	default:
		return "[WORK]"
	}
}

func (s Status) String() string { return string(s) }
