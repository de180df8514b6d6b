package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/stars4all/nixnox-cli/internal/db"
	"github.com/stars4all/nixnox-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS observers (
	observer_id BIGSERIAL PRIMARY KEY,
	type        TEXT NOT NULL,
	name        TEXT NOT NULL,
	nickname    TEXT,
	affiliation TEXT,
	acronym     TEXT,
	website_url TEXT,
	email       TEXT,
	valid_since TIMESTAMPTZ NOT NULL,
	valid_until TIMESTAMPTZ NOT NULL,
	valid_state TEXT NOT NULL,
	CONSTRAINT observers_natural_key UNIQUE (name, valid_since, valid_until)
);

CREATE TABLE IF NOT EXISTS locations (
	location_id BIGSERIAL PRIMARY KEY,
	longitude   DOUBLE PRECISION NOT NULL,
	latitude    DOUBLE PRECISION NOT NULL,
	masl        DOUBLE PRECISION,
	coords_meas TEXT NOT NULL,
	place       TEXT NOT NULL,
	town        TEXT NOT NULL,
	sub_region  TEXT NOT NULL,
	region      TEXT NOT NULL,
	country     TEXT NOT NULL,
	timezone    TEXT NOT NULL,
	CONSTRAINT locations_natural_key UNIQUE (longitude, latitude)
);

CREATE TABLE IF NOT EXISTS photometers (
	phot_id    BIGSERIAL PRIMARY KEY,
	model      TEXT NOT NULL,
	name       TEXT NOT NULL,
	sensor     TEXT NOT NULL DEFAULT 'TSL237',
	fov        DOUBLE PRECISION,
	zero_point DOUBLE PRECISION,
	comment    TEXT,
	CONSTRAINT photometers_natural_key UNIQUE (model, name)
);

CREATE TABLE IF NOT EXISTS observations (
	obs_id             BIGSERIAL PRIMARY KEY,
	identifier         TEXT NOT NULL,
	digest             TEXT NOT NULL,
	temperature_1      DOUBLE PRECISION,
	temperature_2      DOUBLE PRECISION,
	temperature_meas   TEXT NOT NULL,
	humidity_1         DOUBLE PRECISION,
	humidity_2         DOUBLE PRECISION,
	humidity_meas      TEXT NOT NULL,
	timestamp_1        TIMESTAMPTZ,
	timestamp_2        TIMESTAMPTZ,
	timestamp_meas     TEXT NOT NULL,
	weather_conditions TEXT,
	image_url          TEXT,
	other_observers    TEXT,
	comment            TEXT,
	CONSTRAINT observations_digest_key UNIQUE (digest)
);

CREATE TABLE IF NOT EXISTS measurements (
	meas_id     BIGSERIAL PRIMARY KEY,
	date_id     INTEGER NOT NULL,
	time_id     INTEGER NOT NULL,
	observer_id BIGINT NOT NULL REFERENCES observers(observer_id),
	location_id BIGINT NOT NULL REFERENCES locations(location_id),
	phot_id     BIGINT NOT NULL REFERENCES photometers(phot_id),
	obs_id      BIGINT NOT NULL REFERENCES observations(obs_id),
	sequence    INTEGER,
	azimuth     DOUBLE PRECISION NOT NULL,
	altitude    DOUBLE PRECISION NOT NULL,
	zenital     DOUBLE PRECISION NOT NULL,
	magnitude   DOUBLE PRECISION NOT NULL,
	frequency   DOUBLE PRECISION,
	sensor_temp DOUBLE PRECISION,
	sky_temp    DOUBLE PRECISION,
	longitude   DOUBLE PRECISION,
	latitude    DOUBLE PRECISION,
	masl        DOUBLE PRECISION,
	bat_volt    DOUBLE PRECISION
);

CREATE INDEX IF NOT EXISTS idx_measurements_obs ON measurements(obs_id);
CREATE INDEX IF NOT EXISTS idx_observations_identifier ON observations(identifier);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) FindObservationByDigest(ctx context.Context, digest string) (*model.Observation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+observationCols+` FROM observations WHERE digest = $1`, digest)
	obs, err := pgScanObservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return obs, err
}

func (s *PostgresStore) FindObserver(ctx context.Context, typ model.ObserverType, name string) (*model.Observer, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT observer_id, type, name, nickname, affiliation, acronym, website_url, email,
			valid_since, valid_until, valid_state
		 FROM observers WHERE type = $1 AND name = $2
		 ORDER BY valid_since DESC LIMIT 1`,
		string(typ), name)
	var o model.Observer
	var ot, state string
	err := row.Scan(&o.ID, &ot, &o.Name, &o.Nickname, &o.Affiliation, &o.Acronym,
		&o.WebsiteURL, &o.Email, &o.ValidSince, &o.ValidUntil, &state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan observer")
	}
	o.Type = model.ObserverType(ot)
	o.ValidState = model.ValidState(state)
	return &o, nil
}

func (s *PostgresStore) FindLocation(ctx context.Context, longitude, latitude float64) (*model.Location, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT location_id, longitude, latitude, masl, coords_meas,
			place, town, sub_region, region, country, timezone
		 FROM locations WHERE longitude = $1 AND latitude = $2`,
		longitude, latitude)
	var l model.Location
	var coords string
	err := row.Scan(&l.ID, &l.Longitude, &l.Latitude, &l.Masl, &coords,
		&l.Place, &l.Town, &l.SubRegion, &l.Region, &l.Country, &l.Timezone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan location")
	}
	l.CoordsMeas = model.CoordinatesMeas(coords)
	return &l, nil
}

func (s *PostgresStore) FindPhotometer(ctx context.Context, pm model.PhotometerModel, name string) (*model.Photometer, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT phot_id, model, name, sensor, fov, zero_point, comment
		 FROM photometers WHERE model = $1 AND name = $2`,
		string(pm), name)
	var p model.Photometer
	var m, sensor string
	err := row.Scan(&p.ID, &m, &p.Name, &sensor, &p.Fov, &p.ZeroPoint, &p.Comment)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan photometer")
	}
	p.Model = model.PhotometerModel(m)
	p.Sensor = model.Sensor(sensor)
	return &p, nil
}

func (s *PostgresStore) SaveObservation(ctx context.Context, b *Batch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if b.Observer.ID == 0 {
		o := b.Observer
		err := tx.QueryRow(ctx,
			`INSERT INTO observers (type, name, nickname, affiliation, acronym, website_url, email,
				valid_since, valid_until, valid_state)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING observer_id`,
			string(o.Type), o.Name, o.Nickname, o.Affiliation, o.Acronym, o.WebsiteURL, o.Email,
			o.ValidSince, o.ValidUntil, string(o.ValidState)).Scan(&o.ID)
		if err != nil {
			return s.translate(ctx, err, b, "observer", o.Name)
		}
	}

	if b.Location.ID == 0 {
		l := b.Location
		err := tx.QueryRow(ctx,
			`INSERT INTO locations (longitude, latitude, masl, coords_meas,
				place, town, sub_region, region, country, timezone)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING location_id`,
			l.Longitude, l.Latitude, l.Masl, string(l.CoordsMeas),
			l.Place, l.Town, l.SubRegion, l.Region, l.Country, l.Timezone).Scan(&l.ID)
		if err != nil {
			return s.translate(ctx, err, b, "location", l.Place)
		}
	}

	if b.Photometer.ID == 0 {
		p := b.Photometer
		err := tx.QueryRow(ctx,
			`INSERT INTO photometers (model, name, sensor, fov, zero_point, comment)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING phot_id`,
			string(p.Model), p.Name, string(p.Sensor), p.Fov, p.ZeroPoint, p.Comment).Scan(&p.ID)
		if err != nil {
			return s.translate(ctx, err, b, "photometer", p.Name)
		}
	}

	o := b.Observation
	err = tx.QueryRow(ctx,
		`INSERT INTO observations (identifier, digest,
			temperature_1, temperature_2, temperature_meas,
			humidity_1, humidity_2, humidity_meas,
			timestamp_1, timestamp_2, timestamp_meas,
			weather_conditions, image_url, other_observers, comment)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING obs_id`,
		o.Identifier, o.Digest,
		o.Temperature1, o.Temperature2, string(o.TemperatureMeas),
		o.Humidity1, o.Humidity2, string(o.HumidityMeas),
		o.Timestamp1, o.Timestamp2, string(o.TimestampMeas),
		o.WeatherConditions, o.ImageURL, o.OtherObservers, o.Comment).Scan(&o.ID)
	if err != nil {
		return s.translate(ctx, err, b, "observation", o.Identifier)
	}

	cols := []string{"date_id", "time_id", "observer_id", "location_id", "phot_id", "obs_id",
		"sequence", "azimuth", "altitude", "zenital", "magnitude",
		"frequency", "sensor_temp", "sky_temp", "longitude", "latitude", "masl", "bat_volt"}
	rows := make([][]any, len(b.Measurements))
	for i := range b.Measurements {
		m := &b.Measurements[i]
		m.ObserverID = b.Observer.ID
		m.LocationID = b.Location.ID
		m.PhotometerID = b.Photometer.ID
		m.ObservationID = o.ID
		rows[i] = []any{m.DateID, m.TimeID, m.ObserverID, m.LocationID, m.PhotometerID, m.ObservationID,
			m.Sequence, m.Azimuth, m.Altitude, m.Zenital, m.Magnitude,
			m.Frequency, m.SensorTemp, m.SkyTemp, m.Longitude, m.Latitude, m.Masl, m.BatVolt}
	}
	if _, err := db.CopyFrom(ctx, tx, "measurements", cols, rows); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return s.translate(ctx, err, b, "observation", o.Identifier)
	}
	return nil
}

// translate maps unique violations to the duplicate/conflict taxonomy.
func (s *PostgresStore) translate(ctx context.Context, err error, b *Batch, entity, key string) error {
	constraint, ok := db.IsUniqueViolation(err)
	if !ok {
		return eris.Wrapf(err, "postgres: insert %s", entity)
	}
	if strings.Contains(constraint, "digest") {
		existing, qerr := s.FindObservationByDigest(ctx, b.Observation.Digest)
		if qerr == nil && existing != nil {
			return &DuplicateError{Existing: existing}
		}
		return eris.Wrap(err, "postgres: insert observation")
	}
	return &ConflictError{Entity: entity, Key: key}
}

func (s *PostgresStore) Bundle(ctx context.Context, identifier string) (*Bundle, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+observationCols+` FROM observations WHERE identifier = $1
		 ORDER BY obs_id LIMIT 1`, identifier)
	obs, err := pgScanObservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "observation %q", identifier)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT meas_id, date_id, time_id, observer_id, location_id, phot_id, obs_id,
			sequence, azimuth, altitude, zenital, magnitude,
			frequency, sensor_temp, sky_temp, longitude, latitude, masl, bat_volt
		 FROM measurements WHERE obs_id = $1 ORDER BY sequence, meas_id`, obs.ID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load measurements")
	}
	defer rows.Close()

	var ms []model.Measurement
	for rows.Next() {
		var m model.Measurement
		if err := rows.Scan(&m.ID, &m.DateID, &m.TimeID,
			&m.ObserverID, &m.LocationID, &m.PhotometerID, &m.ObservationID,
			&m.Sequence, &m.Azimuth, &m.Altitude, &m.Zenital, &m.Magnitude,
			&m.Frequency, &m.SensorTemp, &m.SkyTemp, &m.Longitude, &m.Latitude, &m.Masl, &m.BatVolt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan measurement")
		}
		ms = append(ms, m)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate measurements")
	}
	if len(ms) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "observation %q has no measurements", identifier)
	}

	observer, err := s.findObserverByID(ctx, ms[0].ObserverID)
	if err != nil {
		return nil, err
	}
	location, err := s.findLocationByID(ctx, ms[0].LocationID)
	if err != nil {
		return nil, err
	}
	photometer, err := s.findPhotometerByID(ctx, ms[0].PhotometerID)
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

func (s *PostgresStore) ListObservations(ctx context.Context) ([]Summary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT o.identifier, o.timestamp_1, ob.name, l.place, p.name, COUNT(m.meas_id)
		 FROM observations o
		 JOIN measurements m ON m.obs_id = o.obs_id
		 JOIN observers ob   ON ob.observer_id = m.observer_id
		 JOIN locations l    ON l.location_id = m.location_id
		 JOIN photometers p  ON p.phot_id = m.phot_id
		 GROUP BY o.obs_id, o.identifier, o.timestamp_1, ob.name, l.place, p.name
		 ORDER BY o.identifier`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list observations")
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sm Summary
		var count int64
		if err := rows.Scan(&sm.Identifier, &sm.Timestamp, &sm.Observer, &sm.Place, &sm.Photometer, &count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan summary")
		}
		sm.Rows = int(count)
		out = append(out, sm)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate summaries")
}

func (s *PostgresStore) findObserverByID(ctx context.Context, id int64) (*model.Observer, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT observer_id, type, name, nickname, affiliation, acronym, website_url, email,
			valid_since, valid_until, valid_state
		 FROM observers WHERE observer_id = $1`, id)
	var o model.Observer
	var typ, state string
	err := row.Scan(&o.ID, &typ, &o.Name, &o.Nickname, &o.Affiliation, &o.Acronym,
		&o.WebsiteURL, &o.Email, &o.ValidSince, &o.ValidUntil, &state)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: observer by id")
	}
	o.Type = model.ObserverType(typ)
	o.ValidState = model.ValidState(state)
	return &o, nil
}

func (s *PostgresStore) findLocationByID(ctx context.Context, id int64) (*model.Location, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT location_id, longitude, latitude, masl, coords_meas,
			place, town, sub_region, region, country, timezone
		 FROM locations WHERE location_id = $1`, id)
	var l model.Location
	var coords string
	err := row.Scan(&l.ID, &l.Longitude, &l.Latitude, &l.Masl, &coords,
		&l.Place, &l.Town, &l.SubRegion, &l.Region, &l.Country, &l.Timezone)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: location by id")
	}
	l.CoordsMeas = model.CoordinatesMeas(coords)
	return &l, nil
}

func (s *PostgresStore) findPhotometerByID(ctx context.Context, id int64) (*model.Photometer, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT phot_id, model, name, sensor, fov, zero_point, comment
		 FROM photometers WHERE phot_id = $1`, id)
	var p model.Photometer
	var m, sensor string
	err := row.Scan(&p.ID, &m, &p.Name, &sensor, &p.Fov, &p.ZeroPoint, &p.Comment)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: photometer by id")
	}
	p.Model = model.PhotometerModel(m)
	p.Sensor = model.Sensor(sensor)
	return &p, nil
}

// pgScanObservation scans the observationCols column list from a pgx row.
func pgScanObservation(row pgx.Row) (*model.Observation, error) {
	var o model.Observation
	var tMeas, hMeas, tsMeas string
	err := row.Scan(&o.ID, &o.Identifier, &o.Digest,
		&o.Temperature1, &o.Temperature2, &tMeas,
		&o.Humidity1, &o.Humidity2, &hMeas,
		&o.Timestamp1, &o.Timestamp2, &tsMeas,
		&o.WeatherConditions, &o.ImageURL, &o.OtherObservers, &o.Comment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan observation")
	}
	o.TemperatureMeas = model.TemperatureMeas(tMeas)
	o.HumidityMeas = model.HumidityMeas(hMeas)
	o.TimestampMeas = model.TimestampMeas(tsMeas)
	return &o, nil
}
