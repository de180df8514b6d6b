package ingest

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/stars4all/nixnox-cli/internal/model"
	"github.com/stars4all/nixnox-cli/pkg/ecsv"
)

const (
	legacyTimeLayout  = "2006-01-02 15:04:05"
	currentTimeLayout = "2006-01-02T15:04:05"
)

// buildMeasurements produces one measurement per table row. The UTC timestamp
// column drives the date and time dimension keys, the zenital distance is
// always derived from altitude, and the device-specific optional columns are
// copied through when present.
func buildMeasurements(t *ecsv.Table, layouts ...string) ([]model.Measurement, error) {
	out := make([]model.Measurement, 0, len(t.Rows))
	for i, row := range t.Rows {
		tstamp, err := parseRowTime(row.Text("UT_Datetime"), layouts)
		if err != nil {
			return nil, eris.Wrapf(err, "row %d", i)
		}
		seq, err := row.Int("ind")
		if err != nil {
			return nil, eris.Wrapf(err, "row %d", i)
		}
		azimuth, err := row.Float("Azi")
		if err != nil {
			return nil, eris.Wrapf(err, "row %d", i)
		}
		altitude, err := row.Float("Alt")
		if err != nil {
			return nil, eris.Wrapf(err, "row %d", i)
		}
		magnitude, err := row.Float("Mag")
		if err != nil {
			return nil, eris.Wrapf(err, "row %d", i)
		}

		m := model.Measurement{
			DateID:    model.DateKey(tstamp),
			TimeID:    model.TimeKey(tstamp),
			Sequence:  &seq,
			Azimuth:   azimuth,
			Altitude:  altitude,
			Zenital:   90.0 - altitude,
			Magnitude: magnitude,
		}
		for _, opt := range []struct {
			col  string
			dest **float64
		}{
			{"Hz", &m.Frequency},
			{"Temp_IR", &m.SkyTemp},
			{"T_sens", &m.SensorTemp},
			{"Long", &m.Longitude},
			{"Lat", &m.Latitude},
			{"SL", &m.Masl},
			{"VBat", &m.BatVolt},
		} {
			v, err := row.OptFloat(opt.col)
			if err != nil {
				return nil, eris.Wrapf(err, "row %d", i)
			}
			*opt.dest = v
		}
		out = append(out, m)
	}
	return out, nil
}

func parseRowTime(raw string, layouts []string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, &ecsv.ParseError{Reason: "missing column \"UT_Datetime\""}
	}
	var err error
	for _, layout := range layouts {
		var ts time.Time
		if ts, err = time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, eris.Wrapf(err, "timestamp %q", raw)
}

// BackfillBatteryVoltage fills the battery voltage of measurements from a raw
// instrument log, matching rows by sequence number. Misaligned sequence
// numbers are an error; no partial backfill is applied.
func BackfillBatteryVoltage(ms []model.Measurement, raw *ecsv.Table) error {
	bySeq := make(map[int]*float64, len(raw.Rows))
	for i, row := range raw.Rows {
		seq, err := row.Int("ind")
		if err != nil {
			return eris.Wrapf(err, "raw log row %d", i)
		}
		v, err := row.OptFloat("VBat")
		if err != nil {
			return eris.Wrapf(err, "raw log row %d", i)
		}
		bySeq[seq] = v
	}
	volts := make([]*float64, len(ms))
	for i := range ms {
		if ms[i].Sequence == nil {
			return eris.Errorf("measurement %d has no sequence number", i)
		}
		v, ok := bySeq[*ms[i].Sequence]
		if !ok {
			return eris.Errorf("raw log has no row for sequence %d", *ms[i].Sequence)
		}
		volts[i] = v
	}
	for i := range ms {
		ms[i].BatVolt = volts[i]
	}
	return nil
}

// median returns the median of values, averaging the two middle elements for
// even counts. The input slice is not modified.
func median(values []float64) float64 {
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
