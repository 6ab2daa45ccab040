package inventory

// Inventory is the ledger row governing a flight's remaining seats.
type Inventory struct {
	FlightID   int64 `json:"flightId"`
	ModalityID int64 `json:"modalityId"`
	Quantity   int   `json:"quantity"`
	Sold       int   `json:"sold"`
	Remaining  int   `json:"remaining"`
	Active     bool  `json:"active"`
}

// Adjustment is the outcome of one ApplyPassengerDelta call.
type Adjustment struct {
	FlightID            int64  `json:"flightId"`
	Delta               int    `json:"delta"`
	Quantity            int    `json:"quantity"`
	Sold                int    `json:"sold"`
	Requested           int    `json:"requested"`
	Remaining           int    `json:"remaining"`
	SoldOut             bool   `json:"soldOut"`
	Oversold            bool   `json:"oversold"`
	Missing             bool   `json:"missing,omitempty"`
	UpstreamTransportID string `json:"upstreamTransportId,omitempty"`
}

// Clamped reports whether sold was pinned to 0 or quantity.
func (a Adjustment) Clamped() bool {
	return !a.Missing && a.Requested != a.Sold
}
