package model

// Photometer is one physical instrument, keyed by (model, name).
type Photometer struct {
	ID        int64           `json:"id,omitempty"`
	Model     PhotometerModel `json:"model"`
	Name      string          `json:"name"`
	Sensor    Sensor          `json:"sensor"`
	Fov       *float64        `json:"fov,omitempty"`        // field of view, degrees
	ZeroPoint *float64        `json:"zero_point,omitempty"` // TAS only
	Comment   *string         `json:"comment,omitempty"`
}

// Meta returns the photometer's exported table-metadata representation.
func (p *Photometer) Meta() map[string]any {
	return map[string]any{
		"model":      string(p.Model),
		"name":       p.Name,
		"sensor":     string(p.Sensor),
		"fov":        deref(p.Fov),
		"zero_point": deref(p.ZeroPoint),
		"comment":    deref(p.Comment),
	}
}
