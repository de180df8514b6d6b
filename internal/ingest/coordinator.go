package ingest

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/stars4all/nixnox-cli/internal/geo"
	"github.com/stars4all/nixnox-cli/internal/model"
	"github.com/stars4all/nixnox-cli/internal/store"
	"github.com/stars4all/nixnox-cli/pkg/ecsv"
)

// Coordinator runs the whole ingestion of one file as an atomic unit:
// digest pre-check, entity resolution, measurement construction and a single
// transactional save.
type Coordinator struct {
	store store.Store
	geo   geo.Resolver
}

func NewCoordinator(st store.Store, resolver geo.Resolver) *Coordinator {
	return &Coordinator{store: st, geo: resolver}
}

// Ingest parses and persists one file. On success it returns the stored
// observation. A file whose digest is already stored yields a
// store.DuplicateError carrying the existing observation; nothing is written.
func (c *Coordinator) Ingest(ctx context.Context, filename string, data []byte) (*model.Observation, error) {
	return c.ingest(ctx, filename, data, nil)
}

// IngestWithRawLog ingests a file and backfills the battery voltage of every
// measurement from a raw instrument log, matched by sequence number.
func (c *Coordinator) IngestWithRawLog(ctx context.Context, filename string, data, rawLog []byte) (*model.Observation, error) {
	raw, err := ecsv.Read(bytes.NewReader(rawLog))
	if err != nil {
		return nil, eris.Wrapf(err, "ingest %s: raw log", filename)
	}
	return c.ingest(ctx, filename, data, raw)
}

func (c *Coordinator) ingest(ctx context.Context, filename string, data []byte, raw *ecsv.Table) (*model.Observation, error) {
	logger := zap.L().With(
		zap.String("attempt_id", uuid.NewString()),
		zap.String("file", filename),
	)

	digest := Digest(data)
	table, err := ecsv.Read(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrapf(err, "ingest %s", filename)
	}
	loader, err := NewLoader(table)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest %s", filename)
	}

	identifier := identifierFromFilename(filepath.Base(filename))
	obs, err := loader.NewObservation(identifier, digest)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest %s", filename)
	}
	logger = logger.With(zap.String("digest", obs.Digest), zap.String("identifier", obs.Identifier))

	existing, err := c.store.FindObservationByDigest(ctx, obs.Digest)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest %s", filename)
	}
	if existing != nil {
		logger.Warn("duplicate content", zap.String("existing_identifier", existing.Identifier))
		return nil, &store.DuplicateError{Existing: existing}
	}

	// A dimension natural-key race leaves the winner's row behind; one
	// re-resolution pass then finds it and the save succeeds. The geocode
	// result is kept across the retry so the service is hit at most once.
	var place *geo.Place
	for attempt := 0; ; attempt++ {
		batch, resolved, err := c.resolve(ctx, loader, obs, raw, place)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest %s", filename)
		}
		place = resolved
		err = c.store.SaveObservation(ctx, batch)
		if err == nil {
			logger.Info("observation stored",
				zap.Int64("obs_id", batch.Observation.ID),
				zap.Int("measurements", len(batch.Measurements)),
			)
			return batch.Observation, nil
		}
		var conflict *store.ConflictError
		if errors.As(err, &conflict) && attempt == 0 {
			logger.Warn("dimension conflict, retrying resolution",
				zap.String("entity", conflict.Entity),
				zap.String("key", conflict.Key),
			)
			continue
		}
		var dup *store.DuplicateError
		if errors.As(err, &dup) {
			logger.Warn("duplicate content at commit",
				zap.String("existing_identifier", dup.Existing.Identifier))
			return nil, err
		}
		logger.Error("save failed", zap.Error(err))
		return nil, eris.Wrapf(err, "ingest %s", filename)
	}
}

// resolve performs the lookup-or-create step for every dimension and builds
// the measurement rows. Existing rows are used unchanged; the geocoding
// service is consulted only for a coordinate pair with no stored location and
// no place carried over from an earlier resolution pass.
func (c *Coordinator) resolve(ctx context.Context, loader Loader, obs *model.Observation, raw *ecsv.Table, place *geo.Place) (*store.Batch, *geo.Place, error) {
	observer, err := loader.NewObserver()
	if err != nil {
		return nil, place, err
	}
	if found, err := c.store.FindObserver(ctx, observer.Type, observer.Name); err != nil {
		return nil, place, err
	} else if found != nil {
		observer = found
	}

	photometer, err := loader.NewPhotometer()
	if err != nil {
		return nil, place, err
	}
	if found, err := c.store.FindPhotometer(ctx, photometer.Model, photometer.Name); err != nil {
		return nil, place, err
	} else if found != nil {
		photometer = found
	}

	longitude, latitude, err := loader.Coordinates()
	if err != nil {
		return nil, place, err
	}
	location, err := c.store.FindLocation(ctx, longitude, latitude)
	if err != nil {
		return nil, place, err
	}
	if location == nil {
		if loader.NeedsGeocode() && place == nil {
			place, err = c.geo.Reverse(ctx, longitude, latitude)
			if err != nil {
				return nil, nil, err
			}
		}
		location, err = loader.NewLocation(place)
		if err != nil {
			return nil, place, err
		}
	}

	measurements, err := loader.Measurements()
	if err != nil {
		return nil, place, err
	}
	if raw != nil {
		if err := BackfillBatteryVoltage(measurements, raw); err != nil {
			return nil, place, err
		}
	}

	clone := *obs
	clone.ID = 0
	return &store.Batch{
		Observer:     observer,
		Location:     location,
		Photometer:   photometer,
		Observation:  &clone,
		Measurements: measurements,
	}, place, nil
}
