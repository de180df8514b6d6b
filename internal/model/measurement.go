package model

// Measurement is one source data row, bound to the resolved dimension rows.
// DateID and TimeID are dense integer keys (YYYYMMDD and HHMMSS) computed
// directly from the row's UTC timestamp, never looked up. Zenital distance is
// always derived as 90 - altitude, never read from input.
type Measurement struct {
	ID            int64 `json:"id,omitempty"`
	DateID        int   `json:"date_id"`
	TimeID        int   `json:"time_id"`
	ObserverID    int64 `json:"observer_id"`
	LocationID    int64 `json:"location_id"`
	PhotometerID  int64 `json:"photometer_id"`
	ObservationID int64 `json:"observation_id"`

	Sequence  *int    `json:"sequence,omitempty"`
	Azimuth   float64 `json:"azimuth"`
	Altitude  float64 `json:"altitude"`
	Zenital   float64 `json:"zenital"`
	Magnitude float64 `json:"magnitude"`

	// TAS only, left unset for devices that do not report them.
	Frequency  *float64 `json:"frequency,omitempty"`
	SensorTemp *float64 `json:"sensor_temp,omitempty"`
	SkyTemp    *float64 `json:"sky_temp,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"` // per-row GPS fix
	Latitude   *float64 `json:"latitude,omitempty"`
	Masl       *float64 `json:"masl,omitempty"`
	BatVolt    *float64 `json:"bat_volt,omitempty"`
}
