package ingest

import (
	"strconv"
	"time"

	"github.com/stars4all/nixnox-cli/internal/geo"
	"github.com/stars4all/nixnox-cli/internal/model"
	"github.com/stars4all/nixnox-cli/pkg/ecsv"
)

// sqmFov is the full width at half maximum of the SQM device family, in degrees.
const sqmFov = 20.0

// SQMLoader builds entities from a legacy keyword-header file produced by the
// single-reading SQM instrument. The device has no GPS, so the coordinates
// and elevation come from the header keywords, one fix per file. There is no
// per-device calibration constant.
type SQMLoader struct {
	table *ecsv.Table
}

func (l *SQMLoader) NewObservation(identifier, digest string) (*model.Observation, error) {
	if mf := optKeyword(l.table, "measurements_file"); mf != nil {
		identifier = identifierFromFilename(*mf)
	}
	return &model.Observation{
		Identifier:      identifier,
		Digest:          digest,
		TemperatureMeas: model.TemperatureUnknown,
		HumidityMeas:    model.HumidityUnknown,
		TimestampMeas:   model.TimestampInitial,
	}, nil
}

func (l *SQMLoader) NewObserver() (*model.Observer, error) {
	name, err := keyword(l.table, "author")
	if err != nil {
		return nil, err
	}
	return &model.Observer{
		Type:        model.ObserverPerson,
		Name:        name,
		Affiliation: optKeyword(l.table, "association"),
		ValidSince:  time.Now().UTC().Truncate(time.Second),
		ValidUntil:  model.ValidUntilForever,
		ValidState:  model.ValidCurrent,
	}, nil
}

func (l *SQMLoader) NewPhotometer() (*model.Photometer, error) {
	name, err := keyword(l.table, "photometer")
	if err != nil {
		return nil, err
	}
	fov := sqmFov
	return &model.Photometer{
		Model:  model.PhotometerSQM,
		Name:   name,
		Sensor: model.SensorTSL237,
		Fov:    &fov,
	}, nil
}

func (l *SQMLoader) Coordinates() (longitude, latitude float64, err error) {
	longitude, err = keywordFloat(l.table, "longitude")
	if err != nil {
		return 0, 0, err
	}
	latitude, err = keywordFloat(l.table, "latitude")
	if err != nil {
		return 0, 0, err
	}
	return longitude, latitude, nil
}

func (l *SQMLoader) NeedsGeocode() bool { return true }

func (l *SQMLoader) NewLocation(place *geo.Place) (*model.Location, error) {
	longitude, latitude, err := l.Coordinates()
	if err != nil {
		return nil, err
	}
	loc := &model.Location{
		Longitude:  longitude,
		Latitude:   latitude,
		CoordsMeas: model.CoordinatesSingle,
		Town:       place.PopCentre,
		SubRegion:  place.SubRegion,
		Region:     place.Region,
		Country:    place.Country,
		Timezone:   place.Timezone,
	}
	if masl, err := keywordFloat(l.table, "height"); err == nil {
		loc.Masl = &masl
	}
	name, err := keyword(l.table, "place")
	if err != nil {
		name = place.PlaceSuggestion
	}
	loc.Place = name
	return loc, nil
}

func (l *SQMLoader) Measurements() ([]model.Measurement, error) {
	return buildMeasurements(l.table, legacyTimeLayout)
}

func keywordFloat(t *ecsv.Table, key string) (float64, error) {
	raw, err := keyword(t, key)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &ecsv.ParseError{Reason: "keyword " + key + ": " + err.Error()}
	}
	return f, nil
}
