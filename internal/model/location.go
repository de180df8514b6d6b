package model

// Location is one observing site, keyed by the exact (longitude, latitude)
// pair. The place-name hierarchy is filled from the geolocation resolver the
// first time a coordinate pair is seen and never updated by ingestion.
type Location struct {
	ID         int64           `json:"id,omitempty"`
	Longitude  float64         `json:"longitude"`
	Latitude   float64         `json:"latitude"`
	Masl       *float64        `json:"masl,omitempty"` // meters above sea level
	CoordsMeas CoordinatesMeas `json:"coords_meas"`
	Place      string          `json:"place"`
	Town       string          `json:"town"`
	SubRegion  string          `json:"sub_region"`
	Region     string          `json:"region"`
	Country    string          `json:"country"`
	Timezone   string          `json:"timezone"` // IANA identifier
}

// Meta returns the location's exported table-metadata representation.
func (l *Location) Meta() map[string]any {
	return map[string]any{
		"longitude":   l.Longitude,
		"latitude":    l.Latitude,
		"masl":        deref(l.Masl),
		"coords_meas": string(l.CoordsMeas),
		"place":       l.Place,
		"town":        l.Town,
		"sub_region":  l.SubRegion,
		"region":      l.Region,
		"country":     l.Country,
		"timezone":    l.Timezone,
	}
}
