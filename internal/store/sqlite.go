package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	sqlite "modernc.org/sqlite"

	"github.com/stars4all/nixnox-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS observers (
	observer_id INTEGER PRIMARY KEY AUTOINCREMENT,
	type        TEXT NOT NULL,
	name        TEXT NOT NULL,
	nickname    TEXT,
	affiliation TEXT,
	acronym     TEXT,
	website_url TEXT,
	email       TEXT,
	valid_since TEXT NOT NULL,
	valid_until TEXT NOT NULL,
	valid_state TEXT NOT NULL,
	UNIQUE (name, valid_since, valid_until)
);

CREATE TABLE IF NOT EXISTS locations (
	location_id INTEGER PRIMARY KEY AUTOINCREMENT,
	longitude   REAL NOT NULL,
	latitude    REAL NOT NULL,
	masl        REAL,
	coords_meas TEXT NOT NULL,
	place       TEXT NOT NULL,
	town        TEXT NOT NULL,
	sub_region  TEXT NOT NULL,
	region      TEXT NOT NULL,
	country     TEXT NOT NULL,
	timezone    TEXT NOT NULL,
	UNIQUE (longitude, latitude)
);

CREATE TABLE IF NOT EXISTS photometers (
	phot_id    INTEGER PRIMARY KEY AUTOINCREMENT,
	model      TEXT NOT NULL,
	name       TEXT NOT NULL,
	sensor     TEXT NOT NULL DEFAULT 'TSL237',
	fov        REAL,
	zero_point REAL,
	comment    TEXT,
	UNIQUE (model, name)
);

CREATE TABLE IF NOT EXISTS observations (
	obs_id             INTEGER PRIMARY KEY AUTOINCREMENT,
	identifier         TEXT NOT NULL,
	digest             TEXT NOT NULL UNIQUE,
	temperature_1      REAL,
	temperature_2      REAL,
	temperature_meas   TEXT NOT NULL,
	humidity_1         REAL,
	humidity_2         REAL,
	humidity_meas      TEXT NOT NULL,
	timestamp_1        TEXT,
	timestamp_2        TEXT,
	timestamp_meas     TEXT NOT NULL,
	weather_conditions TEXT,
	image_url          TEXT,
	other_observers    TEXT,
	comment            TEXT
);

CREATE TABLE IF NOT EXISTS measurements (
	meas_id     INTEGER PRIMARY KEY AUTOINCREMENT,
	date_id     INTEGER NOT NULL,
	time_id     INTEGER NOT NULL,
	observer_id INTEGER NOT NULL REFERENCES observers(observer_id),
	location_id INTEGER NOT NULL REFERENCES locations(location_id),
	phot_id     INTEGER NOT NULL REFERENCES photometers(phot_id),
	obs_id      INTEGER NOT NULL REFERENCES observations(obs_id),
	sequence    INTEGER,
	azimuth     REAL NOT NULL,
	altitude    REAL NOT NULL,
	zenital     REAL NOT NULL,
	magnitude   REAL NOT NULL,
	frequency   REAL,
	sensor_temp REAL,
	sky_temp    REAL,
	longitude   REAL,
	latitude    REAL,
	masl        REAL,
	bat_volt    REAL
);

CREATE INDEX IF NOT EXISTS idx_measurements_obs ON measurements(obs_id);
CREATE INDEX IF NOT EXISTS idx_observations_identifier ON observations(identifier);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const observationCols = `obs_id, identifier, digest,
	temperature_1, temperature_2, temperature_meas,
	humidity_1, humidity_2, humidity_meas,
	timestamp_1, timestamp_2, timestamp_meas,
	weather_conditions, image_url, other_observers, comment`

func (s *SQLiteStore) FindObservationByDigest(ctx context.Context, digest string) (*model.Observation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+observationCols+` FROM observations WHERE digest = ?`, digest)
	obs, err := scanObservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return obs, err
}

func (s *SQLiteStore) FindObserver(ctx context.Context, typ model.ObserverType, name string) (*model.Observer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT observer_id, type, name, nickname, affiliation, acronym, website_url, email,
			valid_since, valid_until, valid_state
		 FROM observers WHERE type = ? AND name = ?
		 ORDER BY valid_since DESC LIMIT 1`,
		string(typ), name)
	o, err := scanObserver(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return o, err
}

func (s *SQLiteStore) FindLocation(ctx context.Context, longitude, latitude float64) (*model.Location, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT location_id, longitude, latitude, masl, coords_meas,
			place, town, sub_region, region, country, timezone
		 FROM locations WHERE longitude = ? AND latitude = ?`,
		longitude, latitude)
	l, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return l, err
}

func (s *SQLiteStore) FindPhotometer(ctx context.Context, pm model.PhotometerModel, name string) (*model.Photometer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT phot_id, model, name, sensor, fov, zero_point, comment
		 FROM photometers WHERE model = ? AND name = ?`,
		string(pm), name)
	p, err := scanPhotometer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (s *SQLiteStore) SaveObservation(ctx context.Context, b *Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if b.Observer.ID == 0 {
		o := b.Observer
		res, err := tx.ExecContext(ctx,
			`INSERT INTO observers (type, name, nickname, affiliation, acronym, website_url, email,
				valid_since, valid_until, valid_state)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(o.Type), o.Name, o.Nickname, o.Affiliation, o.Acronym, o.WebsiteURL, o.Email,
			fmtTime(o.ValidSince), fmtTime(o.ValidUntil), string(o.ValidState))
		if err != nil {
			if isUniqueViolation(err) {
				return &ConflictError{Entity: "observer", Key: o.Name}
			}
			return eris.Wrap(err, "sqlite: insert observer")
		}
		if o.ID, err = res.LastInsertId(); err != nil {
			return eris.Wrap(err, "sqlite: observer id")
		}
	}

	if b.Location.ID == 0 {
		l := b.Location
		res, err := tx.ExecContext(ctx,
			`INSERT INTO locations (longitude, latitude, masl, coords_meas,
				place, town, sub_region, region, country, timezone)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.Longitude, l.Latitude, l.Masl, string(l.CoordsMeas),
			l.Place, l.Town, l.SubRegion, l.Region, l.Country, l.Timezone)
		if err != nil {
			if isUniqueViolation(err) {
				return &ConflictError{Entity: "location", Key: l.Place}
			}
			return eris.Wrap(err, "sqlite: insert location")
		}
		if l.ID, err = res.LastInsertId(); err != nil {
			return eris.Wrap(err, "sqlite: location id")
		}
	}

	if b.Photometer.ID == 0 {
		p := b.Photometer
		res, err := tx.ExecContext(ctx,
			`INSERT INTO photometers (model, name, sensor, fov, zero_point, comment)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			string(p.Model), p.Name, string(p.Sensor), p.Fov, p.ZeroPoint, p.Comment)
		if err != nil {
			if isUniqueViolation(err) {
				return &ConflictError{Entity: "photometer", Key: p.Name}
			}
			return eris.Wrap(err, "sqlite: insert photometer")
		}
		if p.ID, err = res.LastInsertId(); err != nil {
			return eris.Wrap(err, "sqlite: photometer id")
		}
	}

	o := b.Observation
	res, err := tx.ExecContext(ctx,
		`INSERT INTO observations (identifier, digest,
			temperature_1, temperature_2, temperature_meas,
			humidity_1, humidity_2, humidity_meas,
			timestamp_1, timestamp_2, timestamp_meas,
			weather_conditions, image_url, other_observers, comment)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.Identifier, o.Digest,
		o.Temperature1, o.Temperature2, string(o.TemperatureMeas),
		o.Humidity1, o.Humidity2, string(o.HumidityMeas),
		fmtTimePtr(o.Timestamp1), fmtTimePtr(o.Timestamp2), string(o.TimestampMeas),
		o.WeatherConditions, o.ImageURL, o.OtherObservers, o.Comment)
	if err != nil {
		if isUniqueViolation(err) {
			return s.duplicateFor(ctx, o.Digest, err)
		}
		return eris.Wrap(err, "sqlite: insert observation")
	}
	if o.ID, err = res.LastInsertId(); err != nil {
		return eris.Wrap(err, "sqlite: observation id")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO measurements (date_id, time_id, observer_id, location_id, phot_id, obs_id,
			sequence, azimuth, altitude, zenital, magnitude,
			frequency, sensor_temp, sky_temp, longitude, latitude, masl, bat_volt)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare measurement insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i := range b.Measurements {
		m := &b.Measurements[i]
		m.ObserverID = b.Observer.ID
		m.LocationID = b.Location.ID
		m.PhotometerID = b.Photometer.ID
		m.ObservationID = o.ID
		if _, err := stmt.ExecContext(ctx,
			m.DateID, m.TimeID, m.ObserverID, m.LocationID, m.PhotometerID, m.ObservationID,
			m.Sequence, m.Azimuth, m.Altitude, m.Zenital, m.Magnitude,
			m.Frequency, m.SensorTemp, m.SkyTemp, m.Longitude, m.Latitude, m.Masl, m.BatVolt); err != nil {
			return eris.Wrapf(err, "sqlite: insert measurement %d", i)
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return s.duplicateFor(ctx, o.Digest, err)
		}
		return eris.Wrap(err, "sqlite: commit")
	}
	return nil
}

// duplicateFor translates a digest unique violation into a DuplicateError
// carrying the committed winner of the race.
func (s *SQLiteStore) duplicateFor(ctx context.Context, digest string, cause error) error {
	existing, err := s.FindObservationByDigest(ctx, digest)
	if err != nil || existing == nil {
		return eris.Wrap(cause, "sqlite: insert observation")
	}
	return &DuplicateError{Existing: existing}
}

func (s *SQLiteStore) Bundle(ctx context.Context, identifier string) (*Bundle, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+observationCols+` FROM observations WHERE identifier = ?
		 ORDER BY obs_id LIMIT 1`, identifier)
	obs, err := scanObservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "observation %q", identifier)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT meas_id, date_id, time_id, observer_id, location_id, phot_id, obs_id,
			sequence, azimuth, altitude, zenital, magnitude,
			frequency, sensor_temp, sky_temp, longitude, latitude, masl, bat_volt
		 FROM measurements WHERE obs_id = ? ORDER BY sequence, meas_id`, obs.ID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load measurements")
	}
	defer rows.Close() //nolint:errcheck

	var ms []model.Measurement
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, err
		}
		ms = append(ms, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate measurements")
	}
	if len(ms) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "observation %q has no measurements", identifier)
	}

	observer, err := s.observerByID(ctx, ms[0].ObserverID)
	if err != nil {
		return nil, err
	}
	location, err := s.locationByID(ctx, ms[0].LocationID)
	if err != nil {
		return nil, err
	}
	photometer, err := s.photometerByID(ctx, ms[0].PhotometerID)
	if err != nil {
		return nil, err
	}

	return &Bundle{
		Observation:  *obs,
		Observer:     *observer,
		Location:     *location,
		Photometer:   *photometer,
		Measurements: ms,
	}, nil
}

func (s *SQLiteStore) ListObservations(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT o.identifier, o.timestamp_1, ob.name, l.place, p.name, COUNT(m.meas_id)
		 FROM observations o
		 JOIN measurements m ON m.obs_id = o.obs_id
		 JOIN observers ob   ON ob.observer_id = m.observer_id
		 JOIN locations l    ON l.location_id = m.location_id
		 JOIN photometers p  ON p.phot_id = m.phot_id
		 GROUP BY o.obs_id, ob.name, l.place, p.name
		 ORDER BY o.identifier`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list observations")
	}
	defer rows.Close() //nolint:errcheck

	var out []Summary
	for rows.Next() {
		var sm Summary
		var ts sql.NullString
		if err := rows.Scan(&sm.Identifier, &ts, &sm.Observer, &sm.Place, &sm.Photometer, &sm.Rows); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan summary")
		}
		if sm.Timestamp, err = parseTimePtr(ts); err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate summaries")
}

// by-id loads used by Bundle

func (s *SQLiteStore) observerByID(ctx context.Context, id int64) (*model.Observer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT observer_id, type, name, nickname, affiliation, acronym, website_url, email,
			valid_since, valid_until, valid_state
		 FROM observers WHERE observer_id = ?`, id)
	return scanObserver(row)
}

func (s *SQLiteStore) locationByID(ctx context.Context, id int64) (*model.Location, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT location_id, longitude, latitude, masl, coords_meas,
			place, town, sub_region, region, country, timezone
		 FROM locations WHERE location_id = ?`, id)
	return scanLocation(row)
}

func (s *SQLiteStore) photometerByID(ctx context.Context, id int64) (*model.Photometer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT phot_id, model, name, sensor, fov, zero_point, comment
		 FROM photometers WHERE phot_id = ?`, id)
	return scanPhotometer(row)
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanObservation(row scannable) (*model.Observation, error) {
	var o model.Observation
	var tMeas, hMeas, tsMeas string
	var ts1, ts2 sql.NullString
	err := row.Scan(&o.ID, &o.Identifier, &o.Digest,
		&o.Temperature1, &o.Temperature2, &tMeas,
		&o.Humidity1, &o.Humidity2, &hMeas,
		&ts1, &ts2, &tsMeas,
		&o.WeatherConditions, &o.ImageURL, &o.OtherObservers, &o.Comment)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan observation")
	}
	o.TemperatureMeas = model.TemperatureMeas(tMeas)
	o.HumidityMeas = model.HumidityMeas(hMeas)
	o.TimestampMeas = model.TimestampMeas(tsMeas)
	if o.Timestamp1, err = parseTimePtr(ts1); err != nil {
		return nil, err
	}
	if o.Timestamp2, err = parseTimePtr(ts2); err != nil {
		return nil, err
	}
	return &o, nil
}

func scanObserver(row scannable) (*model.Observer, error) {
	var o model.Observer
	var typ, state, since, until string
	err := row.Scan(&o.ID, &typ, &o.Name, &o.Nickname, &o.Affiliation, &o.Acronym,
		&o.WebsiteURL, &o.Email, &since, &until, &state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan observer")
	}
	o.Type = model.ObserverType(typ)
	o.ValidState = model.ValidState(state)
	if o.ValidSince, err = parseTime(since); err != nil {
		return nil, err
	}
	if o.ValidUntil, err = parseTime(until); err != nil {
		return nil, err
	}
	return &o, nil
}

func scanLocation(row scannable) (*model.Location, error) {
	var l model.Location
	var coords string
	err := row.Scan(&l.ID, &l.Longitude, &l.Latitude, &l.Masl, &coords,
		&l.Place, &l.Town, &l.SubRegion, &l.Region, &l.Country, &l.Timezone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan location")
	}
	l.CoordsMeas = model.CoordinatesMeas(coords)
	return &l, nil
}

func scanPhotometer(row scannable) (*model.Photometer, error) {
	var p model.Photometer
	var pm, sensor string
	err := row.Scan(&p.ID, &pm, &p.Name, &sensor, &p.Fov, &p.ZeroPoint, &p.Comment)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan photometer")
	}
	p.Model = model.PhotometerModel(pm)
	p.Sensor = model.Sensor(sensor)
	return &p, nil
}

func scanMeasurement(row scannable) (*model.Measurement, error) {
	var m model.Measurement
	err := row.Scan(&m.ID, &m.DateID, &m.TimeID,
		&m.ObserverID, &m.LocationID, &m.PhotometerID, &m.ObservationID,
		&m.Sequence, &m.Azimuth, &m.Altitude, &m.Zenital, &m.Magnitude,
		&m.Frequency, &m.SensorTemp, &m.SkyTemp, &m.Longitude, &m.Latitude, &m.Masl, &m.BatVolt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan measurement")
	}
	return &m, nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse time %q", s)
	}
	return t, nil
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// isUniqueViolation reports whether err is any SQLITE_CONSTRAINT variant.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == 19
	}
	return false
}
