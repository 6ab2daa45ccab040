package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const ServiceTypeTransport = "transport"

// Booking is the authoritative booking record pulled from the reservation platform.
type Booking struct {
	Reference string    `json:"reference"`
	Status    string    `json:"status"`
	Services  []Service `json:"services"`
}

func (b *Booking) Empty() bool {
	return b == nil || (b.Reference == "" && len(b.Services) == 0)
}

// Service is one bookable item of a booking. Raw keeps the service exactly as received.
type Service struct {
	ID          FlexString      `json:"id"`
	Type        string          `json:"type"`
	SupplierID  FlexString      `json:"supplierId"`
	TransportID FlexString      `json:"transportId,omitempty"`
	Status      string          `json:"status,omitempty"`
	Passengers  Passengers      `json:"passengers"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Currency    string          `json:"currency"`
	TravelDate  FlexTime        `json:"travelDate"`
	Segments    []Segment       `json:"segments"`

	Raw json.RawMessage `json:"-"`
}

func (s *Service) UnmarshalJSON(b []byte) error {
	type alias Service
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*s = Service(a)
	s.Raw = append(json.RawMessage(nil), b...)
	return nil
}

func (s Service) IsTransport() bool {
	return strings.EqualFold(s.Type, ServiceTypeTransport)
}

type Passengers struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
	Infants  int `json:"infants"`
}

func (p Passengers) Total() int {
	return p.Adults + p.Children + p.Infants
}

type Segment struct {
	DepartureAirport string   `json:"departureAirport"`
	ArrivalAirport   string   `json:"arrivalAirport"`
	DepartureAt      FlexTime `json:"departureAt"`
	AirlineCode      string   `json:"airlineCode"`
	FlightNumber     string   `json:"flightNumber,omitempty"`
}

type Transport struct {
	ID       FlexString      `json:"id"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Active   bool            `json:"active"`
}

type DeleteResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type PriceCheck struct {
	IsValid        bool            `json:"isValid"`
	ExpectedPrice  decimal.Decimal `json:"expectedPrice"`
	ActualPrice    decimal.Decimal `json:"actualPrice"`
	PercentDiff    decimal.Decimal `json:"percentDiff"`
	TransportFound bool            `json:"transportFound"`
}

// FlexString accepts both JSON strings and numbers; the platform is not consistent about ids.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("flex string: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

var flexLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// FlexTime parses the handful of timestamp layouts the platform emits, plus epoch seconds.
// A value in any other layout leaves Time zero and keeps the text in Unparsed.
type FlexTime struct {
	time.Time
	Unparsed string
}

func (f *FlexTime) UnmarshalJSON(b []byte) error {
	*f = FlexTime{}
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] != '"' {
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			f.Unparsed = string(b)
			return nil
		}
		if secs, err := n.Int64(); err == nil {
			f.Time = time.Unix(secs, 0).UTC()
			return nil
		}
		f.Unparsed = n.String()
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("flex time: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range flexLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			f.Time = t
			return nil
		}
	}
	f.Unparsed = s
	return nil
}

func (f FlexTime) MarshalJSON() ([]byte, error) {
	if f.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(f.Time.Format(time.RFC3339))
}
