// Package ingest turns raw photometer files into persisted observations:
// digest-based deduplication, natural-key entity resolution, measurement
// construction and an atomic save.
package ingest

import (
	"strings"

	"github.com/stars4all/nixnox-cli/internal/geo"
	"github.com/stars4all/nixnox-cli/internal/model"
	"github.com/stars4all/nixnox-cli/pkg/ecsv"
)

// Loader builds in-memory entities from a parsed table. Constructors are
// pure: nothing is persisted until the coordinator saves the whole batch.
// Lookups against storage happen in the coordinator, keyed by the natural
// keys the constructed entities carry.
type Loader interface {
	// NewObservation builds the observation row. The identifier and digest
	// arguments are derived from the file name and bytes; loaders may
	// override them from file metadata.
	NewObservation(identifier, digest string) (*model.Observation, error)
	NewObserver() (*model.Observer, error)
	NewPhotometer() (*model.Photometer, error)

	// Coordinates returns the natural key of the location.
	Coordinates() (longitude, latitude float64, err error)
	// NeedsGeocode reports whether NewLocation requires a resolved place.
	// Self-describing files carry the full hierarchy and skip the lookup.
	NeedsGeocode() bool
	NewLocation(place *geo.Place) (*model.Location, error)

	Measurements() ([]model.Measurement, error)
}

// NewLoader selects the loader for a parsed table: the self-describing
// schema when all four metadata groups are present, otherwise the legacy
// keyword header routed by photometer name prefix.
func NewLoader(t *ecsv.Table) (Loader, error) {
	if t.Meta.Current() {
		return &CurrentLoader{table: t}, nil
	}
	if !t.Meta.Legacy() {
		return nil, &ecsv.ParseError{Reason: "metadata carries neither keywords nor entity groups"}
	}
	name, err := keyword(t, "photometer")
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(name, "TAS") {
		return &TASLoader{table: t}, nil
	}
	return &SQMLoader{table: t}, nil
}

func keyword(t *ecsv.Table, key string) (string, error) {
	v, ok := t.Meta.Keywords[key]
	if !ok || v == "" {
		return "", &ecsv.ParseError{Reason: "missing keyword " + key}
	}
	return v, nil
}

func optKeyword(t *ecsv.Table, key string) *string {
	if v, ok := t.Meta.Keywords[key]; ok && v != "" {
		return &v
	}
	return nil
}

// identifierFromFilename strips the extension from a file name.
func identifierFromFilename(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i]
	}
	return name
}
