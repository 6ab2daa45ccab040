package catalog

import "time"

type LegType string

const (
	LegOutbound LegType = "outbound"
	LegReturn   LegType = "return"
)

// Tag is the token that marks the leg inside a flight base id.
func (l LegType) Tag() string {
	if l == LegReturn {
		return "VUELTA"
	}
	return "IDA"
}

// Flight is a sellable transport product owned by one supplier.
// Seat counts live in the inventory ledger, not here.
type Flight struct {
	ID                  int64     `json:"id"`
	SupplierID          string    `json:"supplierId"`
	UpstreamTransportID string    `json:"upstreamTransportId,omitempty"`
	AirlineCode         string    `json:"airlineCode"`
	BaseID              string    `json:"baseId"`
	Name                string    `json:"name"`
	StartDate           time.Time `json:"startDate"`
	EndDate             time.Time `json:"endDate"`
	Active              bool      `json:"active"`
	LegType             LegType   `json:"legType,omitempty"`
	PairedFlightID      *int64    `json:"pairedFlightId,omitempty"`
}

func (f Flight) HasUpstream() bool { return f.UpstreamTransportID != "" }
