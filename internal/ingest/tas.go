package ingest

import (
	"strconv"
	"strings"
	"time"

	"github.com/stars4all/nixnox-cli/internal/geo"
	"github.com/stars4all/nixnox-cli/internal/model"
	"github.com/stars4all/nixnox-cli/pkg/ecsv"
)

// tasFov is the field of view of the TAS device family, in degrees.
const tasFov = 17.0

// TASLoader builds entities from a legacy keyword-header file produced by the
// high-cadence TAS instrument. The aggregate temperature is the median of the
// per-row sensor readings. Coordinates and elevation come from the header
// keywords; files whose rows carry their own GPS fix use per-row medians
// instead.
type TASLoader struct {
	table *ecsv.Table
}

func (l *TASLoader) NewObservation(identifier, digest string) (*model.Observation, error) {
	if mf := optKeyword(l.table, "measurements_file"); mf != nil {
		identifier = identifierFromFilename(*mf)
	}
	temps, err := l.table.FloatColumn("T_sens")
	if err != nil {
		return nil, err
	}
	t1 := median(temps)
	return &model.Observation{
		Identifier:      identifier,
		Digest:          digest,
		Temperature1:    &t1,
		TemperatureMeas: model.TemperatureMedian,
		HumidityMeas:    model.HumidityUnknown,
		TimestampMeas:   model.TimestampUnique,
	}, nil
}

func (l *TASLoader) NewObserver() (*model.Observer, error) {
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

func (l *TASLoader) NewPhotometer() (*model.Photometer, error) {
	name, err := keyword(l.table, "photometer")
	if err != nil {
		return nil, err
	}
	zp, err := zeroPointFromComments(l.table)
	if err != nil {
		return nil, err
	}
	fov := tasFov
	return &model.Photometer{
		Model:     model.PhotometerTAS,
		Name:      name,
		Sensor:    model.SensorTSL237,
		Fov:       &fov,
		ZeroPoint: &zp,
	}, nil
}

// zeroPointFromComments extracts the calibration constant from the legacy
// comments keyword, whose third whitespace token has the form "ZP:<float>".
func zeroPointFromComments(t *ecsv.Table) (float64, error) {
	comments, err := keyword(t, "comments")
	if err != nil {
		return 0, err
	}
	tokens := strings.Fields(comments)
	if len(tokens) < 3 {
		return 0, &ecsv.ParseError{Reason: "comments keyword has no calibration token"}
	}
	parts := strings.Split(tokens[2], ":")
	zp, err := strconv.ParseFloat(parts[len(parts)-1], 64)
	if err != nil {
		return 0, &ecsv.ParseError{Reason: "calibration token " + tokens[2] + ": " + err.Error()}
	}
	return zp, nil
}

// hasRowGPS reports whether the table carries per-row GPS columns in
// addition to the keyword coordinates.
func (l *TASLoader) hasRowGPS() bool {
	return l.table.HasColumn("Long") && l.table.HasColumn("Lat")
}

func (l *TASLoader) Coordinates() (longitude, latitude float64, err error) {
	if l.hasRowGPS() {
		longs, err := l.table.FloatColumn("Long")
		if err != nil {
			return 0, 0, err
		}
		lats, err := l.table.FloatColumn("Lat")
		if err != nil {
			return 0, 0, err
		}
		return median(longs), median(lats), nil
	}
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

func (l *TASLoader) NeedsGeocode() bool { return true }

func (l *TASLoader) NewLocation(place *geo.Place) (*model.Location, error) {
	longitude, latitude, err := l.Coordinates()
	if err != nil {
		return nil, err
	}
	coordsMeas := model.CoordinatesSingle
	var masl *float64
	if l.hasRowGPS() {
		coordsMeas = model.CoordinatesMedian
	}
	if l.table.HasColumn("SL") {
		elevations, err := l.table.FloatColumn("SL")
		if err != nil {
			return nil, err
		}
		m := median(elevations)
		masl = &m
	} else if h, err := keywordFloat(l.table, "height"); err == nil {
		masl = &h
	}
	name, err := keyword(l.table, "place")
	if err != nil {
		name = place.PlaceSuggestion
	}
	return &model.Location{
		Longitude:  longitude,
		Latitude:   latitude,
		Masl:       masl,
		CoordsMeas: coordsMeas,
		Place:      name,
		Town:       place.PopCentre,
		SubRegion:  place.SubRegion,
		Region:     place.Region,
		Country:    place.Country,
		Timezone:   place.Timezone,
	}, nil
}

func (l *TASLoader) Measurements() ([]model.Measurement, error) {
	return buildMeasurements(l.table, legacyTimeLayout)
}
