package webhook

import (
	"context"

	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/logger"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/reservation"
	"github.com/andreasstove999/travel-hub/services/booking-sync-service-go/internal/upstream"
)

const ReasonSupplierNotManaged = "Supplier not managed"

type SupplierSource interface {
	ManagedSupplierIDs(ctx context.Context) ([]string, error)
}

// Filter keeps the transport services of managed suppliers. The managed set is the
// configured list plus the managed_suppliers table.
type Filter struct {
	static []string
	source SupplierSource
	log    logger.Logger
}

func NewFilter(static []string, source SupplierSource, log logger.Logger) *Filter {
	return &Filter{static: static, source: source, log: log}
}

func (f *Filter) managed(ctx context.Context) map[string]struct{} {
	set := make(map[string]struct{}, len(f.static))
	for _, id := range f.static {
		set[id] = struct{}{}
	}
	if f.source == nil {
		return set
	}
	ids, err := f.source.ManagedSupplierIDs(ctx)
	if err != nil {
		f.log.Warn("load managed suppliers failed, using configured list", "error", err)
		return set
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Split separates services to process from unmanaged transport services. Services that
// are not transports are dropped without an outcome.
func (f *Filter) Split(ctx context.Context, services []upstream.Service) ([]upstream.Service, []reservation.Outcome) {
	set := f.managed(ctx)

	var (
		keep    []upstream.Service
		skipped []reservation.Outcome
	)
	for _, svc := range services {
		if !svc.IsTransport() {
			continue
		}
		if _, ok := set[svc.SupplierID.String()]; !ok {
			skipped = append(skipped, reservation.Outcome{
				ServiceID: svc.ID.String(),
				Action:    reservation.ActionSkipped,
				Reason:    ReasonSupplierNotManaged,
			})
			continue
		}
		keep = append(keep, svc)
	}
	return keep, skipped
}
