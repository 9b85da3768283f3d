package association

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sectorwatch/fleet-backend/internal/apperr"
	"github.com/sectorwatch/fleet-backend/internal/geofence"
	"github.com/sectorwatch/fleet-backend/internal/sectors"
)

// Store persists association sets. ReplaceAssociations must be all or
// nothing: before, when non-nil, runs first inside the same transaction and
// is rolled back with it, and on any error the previous shape and set are
// left intact. It returns an error wrapping apperr.ErrNotFound when the
// geofence does not exist.
type Store interface {
	ReplaceAssociations(ctx context.Context, geofenceID string, matches []Match, before func(ctx context.Context) error) error
}

// Recorder receives one observation per recompute attempt.
type Recorder interface {
	ObserveRecompute(outcome string, elapsed time.Duration, matched int)
}

// Recompute outcomes reported to the Recorder.
const (
	OutcomeOK                 = "ok"
	OutcomeInvalid            = "invalid"
	OutcomeCanceled           = "canceled"
	OutcomeNotFound           = "not_found"
	OutcomeCatalogUnavailable = "catalog_unavailable"
	OutcomePersistenceFailure = "persistence_failure"
)

type nopRecorder struct{}

func (nopRecorder) ObserveRecompute(string, time.Duration, int) {}

// Result summarises a successful recompute.
type Result struct {
	GeofenceID   string  `json:"geofenceId"`
	MatchedCount int     `json:"matchedCount"`
	Scanned      int     `json:"scanned"`
	Matches      []Match `json:"matches,omitempty"`
}

// Engine recomputes associations. Calls for the same geofence id are
// serialised; different ids run in parallel.
type Engine struct {
	catalog  sectors.Catalog
	store    Store
	locks    *keyedMutex
	recorder Recorder
	tracer   trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder reports recompute outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// NewEngine builds an Engine reading sectors from catalog and writing
// associations to store.
func NewEngine(catalog sectors.Catalog, store Store, opts ...Option) *Engine {
	e := &Engine{
		catalog:  catalog,
		store:    store,
		locks:    newKeyedMutex(),
		recorder: nopRecorder{},
		tracer:   otel.Tracer("github.com/sectorwatch/fleet-backend/internal/association"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ShapeLoader reads the persisted shape of a geofence.
type ShapeLoader interface {
	GeofenceShape(ctx context.Context, geofenceID string) (geofence.Shape, error)
}

// Recompute replaces the association set of geofenceID with the sectors
// that overlap shape.
func (e *Engine) Recompute(ctx context.Context, geofenceID string, shape geofence.Shape) (*Result, error) {
	return e.RecomputeAfter(ctx, geofenceID, shape, nil)
}

// RecomputeAfter is Recompute with an extra write step. Under the geofence
// lock it takes the snapshot and computes matches, then hands write
// (typically persisting the new shape) to the store so it commits in the
// same transaction as the association replace. A failing snapshot, write or
// replace leaves both shape and associations untouched.
func (e *Engine) RecomputeAfter(
	ctx context.Context,
	geofenceID string,
	shape geofence.Shape,
	write func(ctx context.Context) error,
) (*Result, error) {
	if shape == nil {
		return e.run(ctx, geofenceID, nil, write)
	}
	return e.run(ctx, geofenceID, func(context.Context) (geofence.Shape, error) { return shape, nil }, write)
}

// RecomputeStored recomputes using the shape returned by loader. The shape
// is read under the geofence lock so a concurrent update cannot slip in
// between.
func (e *Engine) RecomputeStored(ctx context.Context, geofenceID string, loader ShapeLoader) (*Result, error) {
	return e.run(ctx, geofenceID, func(ctx context.Context) (geofence.Shape, error) {
		return loader.GeofenceShape(ctx, geofenceID)
	}, nil)
}

func (e *Engine) run(
	ctx context.Context,
	geofenceID string,
	resolve func(ctx context.Context) (geofence.Shape, error),
	write func(ctx context.Context) error,
) (*Result, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "association.Recompute",
		trace.WithAttributes(attribute.String("geofence.id", geofenceID)))
	defer span.End()

	res, err := e.recompute(ctx, geofenceID, resolve, write)

	matched := 0
	if res != nil {
		matched = res.MatchedCount
		span.SetAttributes(
			attribute.Int("sectors.scanned", res.Scanned),
			attribute.Int("sectors.matched", res.MatchedCount),
		)
	}
	elapsed := time.Since(start)
	e.recorder.ObserveRecompute(Outcome(err), elapsed, matched)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logError("recompute", geofenceID, err)
		return nil, err
	}
	logRecompute(geofenceID, res.Scanned, res.MatchedCount, elapsed)
	return res, nil
}

func (e *Engine) recompute(
	ctx context.Context,
	geofenceID string,
	resolve func(ctx context.Context) (geofence.Shape, error),
	write func(ctx context.Context) error,
) (*Result, error) {
	if geofenceID == "" {
		return nil, apperr.Invalid("id", "geofence id is required")
	}
	if resolve == nil {
		return nil, apperr.Invalid("shape", "is required")
	}

	unlock, err := e.locks.Lock(ctx, geofenceID)
	if err != nil {
		return nil, fmt.Errorf("wait for geofence %s: %w", geofenceID, err)
	}
	defer unlock()

	shape, err := resolve(ctx)
	if err != nil {
		return nil, err
	}

	snapshot, err := e.catalog.Snapshot(ctx)
	if err != nil {
		if errors.Is(err, apperr.ErrCatalogUnavailable) || isContextErr(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrCatalogUnavailable, err)
	}

	matches := ComputeMatches(shape, snapshot)

	var before func(ctx context.Context) error
	var writeErr error
	if write != nil {
		before = func(ctx context.Context) error {
			writeErr = write(ctx)
			return writeErr
		}
	}

	if err := e.store.ReplaceAssociations(ctx, geofenceID, matches, before); err != nil {
		if writeErr != nil {
			return nil, writeErr
		}
		if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrPersistenceFailure) || isContextErr(err) {
			return nil, err
		}
		return nil, fmt.Errorf("replace associations for %s: %w: %v", geofenceID, apperr.ErrPersistenceFailure, err)
	}

	return &Result{
		GeofenceID:   geofenceID,
		MatchedCount: len(matches),
		Scanned:      len(snapshot),
		Matches:      matches,
	}, nil
}

// WithLock runs fn while holding the lock for geofenceID, so that it cannot
// interleave with a recompute of the same geofence. Deletes use it.
func (e *Engine) WithLock(ctx context.Context, geofenceID string, fn func(ctx context.Context) error) error {
	unlock, err := e.locks.Lock(ctx, geofenceID)
	if err != nil {
		return fmt.Errorf("wait for geofence %s: %w", geofenceID, err)
	}
	defer unlock()
	return fn(ctx)
}

// Outcome classifies a Recompute error for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case apperr.IsValidation(err):
		return OutcomeInvalid
	case isContextErr(err):
		return OutcomeCanceled
	case errors.Is(err, apperr.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, apperr.ErrCatalogUnavailable):
		return OutcomeCatalogUnavailable
	default:
		return OutcomePersistenceFailure
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
