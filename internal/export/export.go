// Package export reconstructs a self-describing file from a stored
// observation, reversing the ingestion pipeline so downloaded files can be
// re-imported.
package export

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/stars4all/nixnox-cli/internal/model"
	"github.com/stars4all/nixnox-cli/internal/store"
	"github.com/stars4all/nixnox-cli/pkg/ecsv"
)

// UnsupportedModelError reports an export request for a device family that
// has no exporter. Emitting a partially-correct file is worse than failing.
type UnsupportedModelError struct {
	Model model.PhotometerModel
}

func (e *UnsupportedModelError) Error() string {
	return fmt.Sprintf("export: unsupported photometer model %q", e.Model)
}

// Filename returns the download file name for an observation identifier.
func Filename(identifier string) string {
	return identifier + ".ecsv"
}

// tasColumns is the current-schema column set, in file order.
var tasColumns = []ecsv.Column{
	{Name: "ind", Datatype: "int64"},
	{Name: "Datetime", Datatype: "string"},
	{Name: "UT_Datetime", Datatype: "string"},
	{Name: "Temp_IR", Datatype: "float64", Unit: "deg_C"},
	{Name: "T_sens", Datatype: "float64", Unit: "deg_C"},
	{Name: "Mag", Datatype: "float64"},
	{Name: "Hz", Datatype: "float64", Unit: "Hz"},
	{Name: "Alt", Datatype: "float64", Unit: "deg"},
	{Name: "Azi", Datatype: "float64", Unit: "deg"},
	{Name: "Lat", Datatype: "float64", Unit: "deg"},
	{Name: "Long", Datatype: "float64", Unit: "deg"},
	{Name: "SL", Datatype: "float64", Unit: "m"},
	{Name: "VBat", Datatype: "float64", Unit: "V"},
}

// Table rebuilds the annotated table for a stored observation bundle: one
// row per measurement plus the four nested metadata groups. Only the TAS
// device family has an exporter.
func Table(b *store.Bundle) (*ecsv.Table, error) {
	if b.Photometer.Model != model.PhotometerTAS {
		return nil, &UnsupportedModelError{Model: b.Photometer.Model}
	}
	loc, err := time.LoadLocation(b.Location.Timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "export: timezone %q", b.Location.Timezone)
	}

	t := &ecsv.Table{
		Columns: tasColumns,
		Rows:    make([]ecsv.Row, 0, len(b.Measurements)),
		Meta: ecsv.Meta{
			Observer:    b.Observer.Meta(),
			Location:    b.Location.Meta(),
			Photometer:  b.Photometer.Meta(),
			Observation: b.Observation.Meta(),
		},
	}
	for i := range b.Measurements {
		m := &b.Measurements[i]
		utc, err := m.UTCTime()
		if err != nil {
			return nil, eris.Wrapf(err, "export: measurement %d", i)
		}
		row := ecsv.Row{
			"ind":         seqCell(m.Sequence),
			"Datetime":    utc.In(loc).Format(model.MetaTimeLayout),
			"UT_Datetime": utc.Format(model.MetaTimeLayout),
			"Mag":         floatCell(m.Magnitude),
			"Alt":         floatCell(m.Altitude),
			"Azi":         floatCell(m.Azimuth),
		}
		// Per-row GPS fields fall back to the location row for devices
		// whose readings were aggregated away.
		setOpt(row, "Temp_IR", m.SkyTemp)
		setOpt(row, "T_sens", m.SensorTemp)
		setOpt(row, "Hz", m.Frequency)
		setOpt(row, "VBat", m.BatVolt)
		setOptDefault(row, "Lat", m.Latitude, b.Location.Latitude)
		setOptDefault(row, "Long", m.Longitude, b.Location.Longitude)
		if m.Masl != nil {
			row["SL"] = floatCell(*m.Masl)
		} else if b.Location.Masl != nil {
			row["SL"] = floatCell(*b.Location.Masl)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func floatCell(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func seqCell(seq *int) string {
	if seq == nil {
		return ""
	}
	return strconv.Itoa(*seq)
}

func setOpt(row ecsv.Row, name string, v *float64) {
	if v != nil {
		row[name] = floatCell(*v)
	}
}

func setOptDefault(row ecsv.Row, name string, v *float64, fallback float64) {
	if v != nil {
		row[name] = floatCell(*v)
		return
	}
	row[name] = floatCell(fallback)
}
