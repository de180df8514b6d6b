package ecsv

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxLineSize = 1 << 20

// Read decodes raw ECSV bytes into a Table. Any malformed content is
// reported as a *ParseError; callers must not proceed to resolution on error.
func Read(r io.Reader) (*Table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var headerLines, dataLines []string
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "#") {
			headerLines = append(headerLines, strings.TrimPrefix(strings.TrimPrefix(line, "#"), " "))
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		dataLines = append(dataLines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, parseErrf("read: %v", err)
	}
	if len(headerLines) == 0 || !strings.HasPrefix(headerLines[0], "%ECSV") {
		return nil, parseErrf("missing %%ECSV header line")
	}
	if len(dataLines) == 0 {
		return nil, parseErrf("no data rows")
	}

	hdr, err := parseHeader(headerLines[1:])
	if err != nil {
		return nil, err
	}

	delim := hdr.Delimiter
	if delim == "" {
		if strings.Contains(dataLines[0], ",") {
			delim = ","
		} else {
			delim = " "
		}
	}

	records, err := parseRecords(dataLines, delim)
	if err != nil {
		return nil, err
	}

	names := records[0]
	columns := hdr.Datatype
	if len(columns) == 0 {
		for _, n := range names {
			columns = append(columns, Column{Name: n, Datatype: "string"})
		}
	} else if len(columns) != len(names) {
		return nil, parseErrf("datatype declares %d columns, data has %d", len(columns), len(names))
	}

	t := &Table{Columns: columns, Meta: hdr.meta}
	for i, rec := range records[1:] {
		if len(rec) != len(names) {
			return nil, parseErrf("row %d has %d fields, want %d", i+1, len(rec), len(names))
		}
		row := make(Row, len(names))
		for j, name := range names {
			row[name] = rec[j]
		}
		t.Rows = append(t.Rows, row)
	}
	if len(t.Rows) == 0 {
		return nil, parseErrf("no data rows")
	}
	return t, nil
}

type header struct {
	Datatype  []Column  `yaml:"datatype"`
	Delimiter string    `yaml:"delimiter"`
	Meta      yaml.Node `yaml:"meta"`

	meta Meta
}

func parseHeader(lines []string) (*header, error) {
	// Skip the YAML document separator astropy emits after the version line.
	if len(lines) > 0 && strings.TrimSpace(lines[0]) == "---" {
		lines = lines[1:]
	}
	var h header
	if err := yaml.Unmarshal([]byte(strings.Join(lines, "\n")), &h); err != nil {
		return nil, parseErrf("header yaml: %v", err)
	}

	bag, err := decodeMetaNode(&h.Meta)
	if err != nil {
		return nil, err
	}
	if kw, ok := bag["keywords"]; ok {
		m, err := asMap(kw)
		if err != nil {
			return nil, parseErrf("keywords: %v", err)
		}
		h.meta.Keywords = make(map[string]string, len(m))
		for k, v := range m {
			if v == nil {
				h.meta.Keywords[k] = ""
				continue
			}
			h.meta.Keywords[k] = fmt.Sprint(v)
		}
		return &h, nil
	}
	for name, dst := range map[string]*map[string]any{
		"Observer":    &h.meta.Observer,
		"Location":    &h.meta.Location,
		"Photometer":  &h.meta.Photometer,
		"Observation": &h.meta.Observation,
	} {
		raw, ok := bag[name]
		if !ok {
			continue
		}
		m, err := asMap(raw)
		if err != nil {
			return nil, parseErrf("meta group %s: %v", name, err)
		}
		*dst = m
	}
	return &h, nil
}

// decodeMetaNode accepts either a plain mapping or the !!omap sequence form
// astropy emits, flattening the latter into a single map.
func decodeMetaNode(n *yaml.Node) (map[string]any, error) {
	if n == nil || n.Kind == 0 {
		return nil, nil
	}
	switch n.Kind {
	case yaml.MappingNode:
		var m map[string]any
		if err := n.Decode(&m); err != nil {
			return nil, parseErrf("meta: %v", err)
		}
		return m, nil
	case yaml.SequenceNode:
		out := make(map[string]any)
		for _, item := range n.Content {
			var m map[string]any
			if err := item.Decode(&m); err != nil {
				return nil, parseErrf("meta item: %v", err)
			}
			for k, v := range m {
				out[k] = v
			}
		}
		return out, nil
	default:
		return nil, parseErrf("meta: unexpected yaml node kind %d", n.Kind)
	}
}

// asMap coerces a decoded metadata value into map[string]any, accepting the
// omap sequence-of-pairs form for nested groups as well.
func asMap(v any) (map[string]any, error) {
	switch m := v.(type) {
	case map[string]any:
		return m, nil
	case []any:
		out := make(map[string]any)
		for _, item := range m {
			mm, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("not a mapping: %T", item)
			}
			for k, vv := range mm {
				out[k] = vv
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("not a mapping: %T", v)
	}
}

func parseRecords(lines []string, delim string) ([][]string, error) {
	if delim == " " {
		// Quoted cells (timestamps with an embedded space) need real CSV
		// parsing; bare lines tolerate run-together whitespace.
		records := make([][]string, 0, len(lines))
		for _, line := range lines {
			if !strings.ContainsRune(line, '"') {
				records = append(records, strings.Fields(line))
				continue
			}
			cr := csv.NewReader(strings.NewReader(line))
			cr.Comma = ' '
			rec, err := cr.Read()
			if err != nil {
				return nil, parseErrf("data row: %v", err)
			}
			records = append(records, rec)
		}
		return records, nil
	}
	cr := csv.NewReader(strings.NewReader(strings.Join(lines, "\n")))
	cr.Comma = rune(delim[0])
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, parseErrf("data rows: %v", err)
	}
	return records, nil
}
