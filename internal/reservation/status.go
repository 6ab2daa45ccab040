package reservation

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusModified  Status = "modified"
	// Terminal: no passenger delta is applied once a reservation is cancelled.
	StatusCancelled Status = "cancelled"
)
