package async

// Stats is a snapshot of scheduler counters.
type Stats struct {
	Scheduled int64 `json:"scheduled"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panicked  int64 `json:"panicked"`
	Dropped   int64 `json:"dropped"`
}

// Idle reports whether no task is in flight.
func (s Stats) Idle() bool {
	return s.Running == 0
}
