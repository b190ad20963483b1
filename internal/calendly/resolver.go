package calendly

import (
	"context"
	"errors"
	"time"

	"github.com/medicare-wellness/clinic-scheduling/internal/clinic"
	redisclient "github.com/medicare-wellness/clinic-scheduling/internal/redis"
	"github.com/medicare-wellness/clinic-scheduling/pkg/logging"
)

// EventTypeFetcher is the part of the Calendly client the resolver uses.
type EventTypeFetcher interface {
	GetEventType(ctx context.Context, eventTypeURI string) (*EventType, error)
}

// Resolution names the doctor an event type belongs to and which of their two
// booking links matched. The link decides the confirmation template (new vs
// existing patient); it has no other effect.
type Resolution struct {
	Doctor      clinic.Doctor
	BookingLink string
	Visit       clinic.VisitType
}

// Resolver maps an event-type URI to a doctor by fetching the event type's
// scheduling link and matching it against each active doctor's booking links.
// Lookups go through a cache so repeat bookings of the same event type skip
// the API round trip.
type Resolver struct {
	fetcher  EventTypeFetcher
	cache    redisclient.Cache
	cacheTTL time.Duration
	logger   *logging.Logger
}

func NewResolver(fetcher EventTypeFetcher, cache redisclient.Cache, cacheTTL time.Duration, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{fetcher: fetcher, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// ResolveDoctor returns nil when no doctor matches. An upstream lookup
// failure is logged and also resolves to nil: losing one event-type lookup
// must not fail the whole webhook delivery.
func (r *Resolver) ResolveDoctor(ctx context.Context, eventTypeURI string, doctors []clinic.Doctor) *Resolution {
	schedulingURL, ok := r.schedulingURL(ctx, eventTypeURI)
	if !ok || schedulingURL == "" {
		return nil
	}

	for _, doc := range doctors {
		switch schedulingURL {
		case doc.NewPatientURL:
			return &Resolution{Doctor: doc, BookingLink: schedulingURL, Visit: clinic.VisitNew}
		case doc.ExistingPatientURL:
			return &Resolution{Doctor: doc, BookingLink: schedulingURL, Visit: clinic.VisitExisting}
		}
	}

	r.logger.Warn("no doctor matches scheduling link", "event_type", eventTypeURI, "scheduling_url", schedulingURL)
	return nil
}

func (r *Resolver) schedulingURL(ctx context.Context, eventTypeURI string) (string, bool) {
	if r.cache != nil {
		cached, err := r.cache.Get(ctx, eventTypeURI)
		if err == nil {
			return cached, true
		}
		if !errors.Is(err, redisclient.ErrCacheMiss) {
			// Cache trouble is not fatal, fall through to the API.
			r.logger.Warn("event type cache read failed", "error", err)
		}
	}

	eventType, err := r.fetcher.GetEventType(ctx, eventTypeURI)
	if err != nil {
		r.logger.Error("event type lookup failed", "event_type", eventTypeURI, "error", err)
		return "", false
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, eventTypeURI, eventType.SchedulingURL, r.cacheTTL); err != nil {
			r.logger.Warn("event type cache write failed", "error", err)
		}
	}

	return eventType.SchedulingURL, true
}
