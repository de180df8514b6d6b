package ingest

import (
	"fmt"
	"strconv"
	"time"

	"github.com/stars4all/nixnox-cli/internal/geo"
	"github.com/stars4all/nixnox-cli/internal/model"
	"github.com/stars4all/nixnox-cli/pkg/ecsv"
)

// CurrentLoader builds entities from a self-describing file whose metadata
// carries the four nested entity groups. No inference is needed, only type
// coercion: every field maps one-to-one onto the corresponding entity.
type CurrentLoader struct {
	table *ecsv.Table
}

func (l *CurrentLoader) NewObservation(identifier, digest string) (*model.Observation, error) {
	g := group(l.table.Meta.Observation, "Observation")
	obs := &model.Observation{
		Identifier:        g.str("identifier", identifier),
		Digest:            g.str("digest", digest),
		TemperatureMeas:   model.TemperatureMeas(g.str("temperature_meas", string(model.TemperatureUnknown))),
		HumidityMeas:      model.HumidityMeas(g.str("humidity_meas", string(model.HumidityUnknown))),
		TimestampMeas:     model.TimestampMeas(g.str("timestamp_meas", string(model.TimestampUnknown))),
		WeatherConditions: g.optStr("weather_conditions"),
		ImageURL:          g.optStr("image_url"),
		OtherObservers:    g.optStr("other_observers"),
		Comment:           g.optStr("comment"),
	}
	var err error
	if obs.Temperature1, err = g.optFloat("temperature_1"); err != nil {
		return nil, err
	}
	if obs.Temperature2, err = g.optFloat("temperature_2"); err != nil {
		return nil, err
	}
	if obs.Humidity1, err = g.optFloat("humidity_1"); err != nil {
		return nil, err
	}
	if obs.Humidity2, err = g.optFloat("humidity_2"); err != nil {
		return nil, err
	}
	if obs.Timestamp1, err = g.optTime("timestamp_1"); err != nil {
		return nil, err
	}
	if obs.Timestamp2, err = g.optTime("timestamp_2"); err != nil {
		return nil, err
	}
	return obs, nil
}

func (l *CurrentLoader) NewObserver() (*model.Observer, error) {
	g := group(l.table.Meta.Observer, "Observer")
	o := &model.Observer{
		Type:        model.ObserverType(g.str("type", "")),
		Name:        g.str("name", ""),
		Nickname:    g.optStr("nickname"),
		Affiliation: g.optStr("affiliation"),
		Acronym:     g.optStr("acronym"),
		WebsiteURL:  g.optStr("website_url"),
		Email:       g.optStr("email"),
		ValidState:  model.ValidState(g.str("valid_state", string(model.ValidCurrent))),
	}
	var err error
	if o.ValidSince, err = g.time("valid_since"); err != nil {
		return nil, err
	}
	if o.ValidUntil, err = g.time("valid_until"); err != nil {
		return nil, err
	}
	return o, nil
}

func (l *CurrentLoader) NewPhotometer() (*model.Photometer, error) {
	g := group(l.table.Meta.Photometer, "Photometer")
	p := &model.Photometer{
		Model:   model.PhotometerModel(g.str("model", "")),
		Name:    g.str("name", ""),
		Sensor:  model.Sensor(g.str("sensor", string(model.SensorTSL237))),
		Comment: g.optStr("comment"),
	}
	var err error
	if p.ZeroPoint, err = g.optFloat("zero_point"); err != nil {
		return nil, err
	}
	if p.Fov, err = g.optFloat("fov"); err != nil {
		return nil, err
	}
	return p, nil
}

func (l *CurrentLoader) Coordinates() (longitude, latitude float64, err error) {
	g := group(l.table.Meta.Location, "Location")
	if longitude, err = g.float("longitude"); err != nil {
		return 0, 0, err
	}
	if latitude, err = g.float("latitude"); err != nil {
		return 0, 0, err
	}
	return longitude, latitude, nil
}

func (l *CurrentLoader) NeedsGeocode() bool { return false }

func (l *CurrentLoader) NewLocation(_ *geo.Place) (*model.Location, error) {
	g := group(l.table.Meta.Location, "Location")
	loc := &model.Location{
		CoordsMeas: model.CoordinatesMeas(g.str("coords_meas", string(model.CoordinatesUnknown))),
		Place:      g.str("place", geo.Unknown),
		Town:       g.str("town", geo.Unknown),
		SubRegion:  g.str("sub_region", geo.Unknown),
		Region:     g.str("region", geo.Unknown),
		Country:    g.str("country", geo.Unknown),
		Timezone:   g.str("timezone", geo.Unknown),
	}
	var err error
	if loc.Longitude, err = g.float("longitude"); err != nil {
		return nil, err
	}
	if loc.Latitude, err = g.float("latitude"); err != nil {
		return nil, err
	}
	if loc.Masl, err = g.optFloat("masl"); err != nil {
		return nil, err
	}
	return loc, nil
}

func (l *CurrentLoader) Measurements() ([]model.Measurement, error) {
	return buildMeasurements(l.table, time.RFC3339, currentTimeLayout)
}

// metaGroup coerces a nested metadata mapping into entity field types.
type metaGroup struct {
	name string
	m    map[string]any
}

func group(m map[string]any, name string) *metaGroup {
	return &metaGroup{name: name, m: m}
}

func (g *metaGroup) str(key, fallback string) string {
	v, ok := g.m[key]
	if !ok || v == nil {
		return fallback
	}
	s := fmt.Sprint(v)
	if s == "" {
		return fallback
	}
	return s
}

func (g *metaGroup) optStr(key string) *string {
	v, ok := g.m[key]
	if !ok || v == nil {
		return nil
	}
	s := fmt.Sprint(v)
	if s == "" {
		return nil
	}
	return &s
}

func (g *metaGroup) float(key string) (float64, error) {
	f, err := g.optFloat(key)
	if err != nil {
		return 0, err
	}
	if f == nil {
		return 0, &ecsv.ParseError{Reason: g.name + " group: missing field " + key}
	}
	return *f, nil
}

func (g *metaGroup) optFloat(key string) (*float64, error) {
	v, ok := g.m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch n := v.(type) {
	case float64:
		return &n, nil
	case int:
		f := float64(n)
		return &f, nil
	case string:
		if n == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return nil, &ecsv.ParseError{Reason: g.name + " group: field " + key + ": " + err.Error()}
		}
		return &f, nil
	default:
		return nil, &ecsv.ParseError{Reason: fmt.Sprintf("%s group: field %s has type %T", g.name, key, v)}
	}
}

func (g *metaGroup) time(key string) (time.Time, error) {
	t, err := g.optTime(key)
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		return time.Time{}, &ecsv.ParseError{Reason: g.name + " group: missing field " + key}
	}
	return *t, nil
}

func (g *metaGroup) optTime(key string) (*time.Time, error) {
	v, ok := g.m[key]
	if !ok || v == nil {
		return nil, nil
	}
	raw := fmt.Sprint(v)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{model.MetaTimeLayout, time.RFC3339} {
		if ts, err := time.Parse(layout, raw); err == nil {
			ts = ts.UTC()
			return &ts, nil
		}
	}
	return nil, &ecsv.ParseError{Reason: g.name + " group: field " + key + ": bad timestamp " + raw}
}
