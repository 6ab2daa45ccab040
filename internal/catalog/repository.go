package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("flight not found")

// flightRow is the GORM mapping of the flights table.
type flightRow struct {
	ID                  int64   `gorm:"primaryKey"`
	SupplierID          string  `gorm:"column:supplier_id"`
	UpstreamTransportID *string `gorm:"column:upstream_transport_id"`
	AirlineCode         string  `gorm:"column:airline_code"`
	BaseID              string  `gorm:"column:base_id"`
	Name                string  `gorm:"column:name"`
	StartDate           time.Time
	EndDate             time.Time
	Active              bool
	LegType             *string `gorm:"column:leg_type"`
	PairedFlightID      *int64  `gorm:"column:paired_flight_id"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (flightRow) TableName() string {
	return "flights"
}

func (r flightRow) toEntity() Flight {
	f := Flight{
		ID:             r.ID,
		SupplierID:     r.SupplierID,
		AirlineCode:    r.AirlineCode,
		BaseID:         r.BaseID,
		Name:           r.Name,
		StartDate:      r.StartDate,
		EndDate:        r.EndDate,
		Active:         r.Active,
		PairedFlightID: r.PairedFlightID,
	}
	if r.UpstreamTransportID != nil {
		f.UpstreamTransportID = *r.UpstreamTransportID
	}
	if r.LegType != nil {
		f.LegType = LegType(*r.LegType)
	}
	return f
}

type managedSupplierRow struct {
	SupplierID string `gorm:"primaryKey;column:supplier_id"`
	Name       string
	Active     bool
}

func (managedSupplierRow) TableName() string {
	return "managed_suppliers"
}

// GormRepository reads flights for matching and flips their active flag.
// Seat counts are never written through it.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// FindByLegTag returns the lowest-id flight of the supplier departing on date whose airline
// matches and whose base id carries tag as a whole token.
func (r *GormRepository) FindByLegTag(ctx context.Context, supplierID string, date time.Time, airline, tag string) (Flight, error) {
	if airline == "" || tag == "" {
		return Flight{}, ErrNotFound
	}
	return r.first(ctx, "find by leg tag",
		"supplier_id = ? AND start_date = ? AND UPPER(airline_code) = ? AND base_id ~* ?",
		supplierID, dateOnly(date), strings.ToUpper(airline), tokenPattern(tag))
}

// FindByAirport matches the departure airport code against the display name or base id.
func (r *GormRepository) FindByAirport(ctx context.Context, supplierID string, date time.Time, airport string) (Flight, error) {
	if airport == "" {
		return Flight{}, ErrNotFound
	}
	like := "%" + strings.ToUpper(airport) + "%"
	return r.first(ctx, "find by airport",
		"supplier_id = ? AND start_date = ? AND (name ILIKE ? OR base_id ILIKE ?)",
		supplierID, dateOnly(date), like, like)
}

func (r *GormRepository) FindByAirline(ctx context.Context, supplierID string, date time.Time, airline string) (Flight, error) {
	if airline == "" {
		return Flight{}, ErrNotFound
	}
	return r.first(ctx, "find by airline",
		"supplier_id = ? AND start_date = ? AND UPPER(airline_code) = ?",
		supplierID, dateOnly(date), strings.ToUpper(airline))
}

func (r *GormRepository) Get(ctx context.Context, id int64) (Flight, error) {
	return r.first(ctx, "get flight", "id = ?", id)
}

// Deactivate sets active=false only when the flight is still active. The boolean reports
// whether this call changed the row.
func (r *GormRepository) Deactivate(ctx context.Context, id int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&flightRow{}).
		Where("id = ? AND active", id).
		Update("active", false)
	if res.Error != nil {
		return false, fmt.Errorf("deactivate flight %d: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ManagedSupplierIDs lists the active rows of managed_suppliers.
func (r *GormRepository) ManagedSupplierIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&managedSupplierRow{}).Where("active = ?", true).Pluck("supplier_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list managed suppliers: %w", err)
	}
	return ids, nil
}

func (r *GormRepository) first(ctx context.Context, op string, query string, args ...any) (Flight, error) {
	var row flightRow
	err := r.db.WithContext(ctx).Where(query, args...).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Flight{}, ErrNotFound
		}
		return Flight{}, fmt.Errorf("%s: %w", op, err)
	}
	return row.toEntity(), nil
}

// tokenPattern builds a case-insensitive Postgres regex matching tag as a whole token,
// so IDA does not match inside IDAVUELTA.
func tokenPattern(tag string) string {
	return `(^|[^A-Z0-9])` + regexp.QuoteMeta(strings.ToUpper(tag)) + `([^A-Z0-9]|$)`
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
