package store

import (
	"context"
	"time"

	"github.com/stars4all/nixnox-cli/internal/model"
)

// Batch is one ingestion's persistence unit: the resolved dimension rows
// (ID zero means "create"), the new observation, and all its measurements.
// Saved atomically; on success the store assigns the generated IDs back into
// the batch entities.
type Batch struct {
	Observer     *model.Observer
	Location     *model.Location
	Photometer   *model.Photometer
	Observation  *model.Observation
	Measurements []model.Measurement
}

// Bundle is everything needed to reconstruct an observation file.
type Bundle struct {
	Observation  model.Observation
	Observer     model.Observer
	Location     model.Location
	Photometer   model.Photometer
	Measurements []model.Measurement
}

// Summary is one line of the observation listing.
type Summary struct {
	Identifier string     `json:"identifier"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
	Observer   string     `json:"observer"`
	Place      string     `json:"place"`
	Photometer string     `json:"photometer"`
	Rows       int        `json:"rows"`
}

// Store is the persistence interface for the ingestion/export pipeline.
// The Find methods implement the natural-key half of resolve-or-create and
// return (nil, nil) when no row matches; ingestion never updates a row they
// return.
type Store interface {
	FindObservationByDigest(ctx context.Context, digest string) (*model.Observation, error)
	FindObserver(ctx context.Context, typ model.ObserverType, name string) (*model.Observer, error)
	FindLocation(ctx context.Context, longitude, latitude float64) (*model.Location, error)
	FindPhotometer(ctx context.Context, pm model.PhotometerModel, name string) (*model.Photometer, error)

	// SaveObservation persists the batch in one transaction. A digest race
	// surfaces as *DuplicateError, a dimension natural-key race as
	// *ConflictError; nothing is retained on failure.
	SaveObservation(ctx context.Context, b *Batch) error

	// Bundle loads an observation and its dimensions for export.
	// Returns ErrNotFound when the identifier is unknown.
	Bundle(ctx context.Context, identifier string) (*Bundle, error)

	ListObservations(ctx context.Context) ([]Summary, error)

	Migrate(ctx context.Context) error
	Close() error
}
