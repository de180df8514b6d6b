package model

import "time"

// Observation is one ingested file/session. The digest is the true identity;
// the identifier is a convenience label derived from the source filename and
// may collide across digests. Created once per successful ingestion and never
// mutated afterward.
type Observation struct {
	ID                int64           `json:"id,omitempty"`
	Identifier        string          `json:"identifier"`
	Digest            string          `json:"digest"`
	Temperature1      *float64        `json:"temperature_1,omitempty"`
	Temperature2      *float64        `json:"temperature_2,omitempty"`
	TemperatureMeas   TemperatureMeas `json:"temperature_meas"`
	Humidity1         *float64        `json:"humidity_1,omitempty"`
	Humidity2         *float64        `json:"humidity_2,omitempty"`
	HumidityMeas      HumidityMeas    `json:"humidity_meas"`
	Timestamp1        *time.Time      `json:"timestamp_1,omitempty"`
	Timestamp2        *time.Time      `json:"timestamp_2,omitempty"`
	TimestampMeas     TimestampMeas   `json:"timestamp_meas"`
	WeatherConditions *string         `json:"weather_conditions,omitempty"`
	ImageURL          *string         `json:"image_url,omitempty"`
	OtherObservers    *string         `json:"other_observers,omitempty"`
	Comment           *string         `json:"comment,omitempty"`
}

// Meta returns the observation's exported table-metadata representation.
func (o *Observation) Meta() map[string]any {
	return map[string]any{
		"identifier":         o.Identifier,
		"digest":             o.Digest,
		"timestamp_1":        metaTime(o.Timestamp1),
		"timestamp_2":        metaTime(o.Timestamp2),
		"timestamp_meas":     string(o.TimestampMeas),
		"temperature_1":      deref(o.Temperature1),
		"temperature_2":      deref(o.Temperature2),
		"temperature_meas":   string(o.TemperatureMeas),
		"humidity_1":         deref(o.Humidity1),
		"humidity_2":         deref(o.Humidity2),
		"humidity_meas":      string(o.HumidityMeas),
		"weather_conditions": deref(o.WeatherConditions),
		"image_url":          deref(o.ImageURL),
		"other_observers":    deref(o.OtherObservers),
		"comment":            deref(o.Comment),
	}
}

func metaTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(MetaTimeLayout)
}
