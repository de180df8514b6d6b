package ecsv

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

type headerDoc struct {
	Datatype  []Column       `yaml:"datatype"`
	Meta      map[string]any `yaml:"meta,omitempty"`
	Delimiter string         `yaml:"delimiter"`
}

// Write encodes the table in the current ECSV schema: a YAML header in
// comment lines followed by comma-delimited rows.
func (t *Table) Write(w io.Writer) error {
	meta := make(map[string]any)
	if t.Meta.Legacy() {
		kw := make(map[string]any, len(t.Meta.Keywords))
		for k, v := range t.Meta.Keywords {
			kw[k] = v
		}
		meta["keywords"] = kw
	} else {
		for name, group := range map[string]map[string]any{
			"Observer":    t.Meta.Observer,
			"Location":    t.Meta.Location,
			"Photometer":  t.Meta.Photometer,
			"Observation": t.Meta.Observation,
		} {
			if group != nil {
				meta[name] = group
			}
		}
	}

	doc := headerDoc{Datatype: t.Columns, Meta: meta, Delimiter: ","}
	raw, err := yaml.Marshal(&doc)
	if err != nil {
		return eris.Wrap(err, "ecsv: marshal header")
	}

	var b strings.Builder
	b.WriteString("# %ECSV 1.0\n# ---\n")
	for _, line := range strings.Split(strings.TrimRight(string(raw), "\n"), "\n") {
		b.WriteString("# ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return eris.Wrap(err, "ecsv: write header")
	}

	cw := csv.NewWriter(w)
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	if err := cw.Write(names); err != nil {
		return eris.Wrap(err, "ecsv: write column names")
	}
	rec := make([]string, len(names))
	for _, row := range t.Rows {
		for i, name := range names {
			rec[i] = row[name]
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "ecsv: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "ecsv: flush")
}
