package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// DateKey encodes a timestamp's UTC date as a YYYYMMDD integer.
func DateKey(t time.Time) int {
	u := t.UTC()
	return u.Year()*10000 + int(u.Month())*100 + u.Day()
}

// TimeKey encodes a timestamp's UTC time of day as an HHMMSS integer.
func TimeKey(t time.Time) int {
	u := t.UTC()
	return u.Hour()*10000 + u.Minute()*100 + u.Second()
}

// FromKeys reconstructs the UTC timestamp encoded by a (date key, time key) pair.
func FromKeys(dateKey, timeKey int) (time.Time, error) {
	year, month, day := dateKey/10000, (dateKey/100)%100, dateKey%100
	hour, minute, second := timeKey/10000, (timeKey/100)%100, timeKey%100
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, eris.Errorf("model: invalid date/time keys %d %d", dateKey, timeKey)
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC), nil
}

// UTCTime returns the measurement timestamp reconstructed from its keys.
func (m *Measurement) UTCTime() (time.Time, error) {
	return FromKeys(m.DateID, m.TimeID)
}

// LocalTime returns the measurement timestamp in the given IANA timezone.
func (m *Measurement) LocalTime(timezone string) (time.Time, error) {
	utc, err := m.UTCTime()
	if err != nil {
		return time.Time{}, err
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "model: load timezone %s", timezone)
	}
	return utc.In(loc), nil
}
