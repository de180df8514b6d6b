package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stars4all/nixnox-cli/internal/geo"
	"github.com/stars4all/nixnox-cli/internal/model"
	"github.com/stars4all/nixnox-cli/internal/store"
	"github.com/stars4all/nixnox-cli/pkg/ecsv"
	"github.com/stars4all/nixnox-cli/pkg/nominatim"
)

// fakeStore keeps everything in memory and mimics the save-time error
// translation of the real backends.
type fakeStore struct {
	observations []*model.Observation
	observers    []*model.Observer
	locations    []*model.Location
	photometers  []*model.Photometer
	batches      []*store.Batch

	conflictsLeft int // inject N ConflictErrors before succeeding
	nextID        int64
}

func newFakeStore() *fakeStore { return &fakeStore{} }

func (f *fakeStore) id() int64 { f.nextID++; return f.nextID }

func (f *fakeStore) FindObservationByDigest(_ context.Context, digest string) (*model.Observation, error) {
	for _, o := range f.observations {
		if o.Digest == digest {
			return o, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindObserver(_ context.Context, typ model.ObserverType, name string) (*model.Observer, error) {
	for _, o := range f.observers {
		if o.Type == typ && o.Name == name {
			return o, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindLocation(_ context.Context, longitude, latitude float64) (*model.Location, error) {
	for _, l := range f.locations {
		if l.Longitude == longitude && l.Latitude == latitude {
			return l, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindPhotometer(_ context.Context, pm model.PhotometerModel, name string) (*model.Photometer, error) {
	for _, p := range f.photometers {
		if p.Model == pm && p.Name == name {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) SaveObservation(_ context.Context, b *store.Batch) error {
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return &store.ConflictError{Entity: "observer", Key: b.Observer.Name}
	}
	for _, o := range f.observations {
		if o.Digest == b.Observation.Digest {
			return &store.DuplicateError{Existing: o}
		}
	}
	if b.Observer.ID == 0 {
		b.Observer.ID = f.id()
		f.observers = append(f.observers, b.Observer)
	}
	if b.Location.ID == 0 {
		b.Location.ID = f.id()
		f.locations = append(f.locations, b.Location)
	}
	if b.Photometer.ID == 0 {
		b.Photometer.ID = f.id()
		f.photometers = append(f.photometers, b.Photometer)
	}
	b.Observation.ID = f.id()
	f.observations = append(f.observations, b.Observation)
	for i := range b.Measurements {
		b.Measurements[i].ID = f.id()
		b.Measurements[i].ObserverID = b.Observer.ID
		b.Measurements[i].LocationID = b.Location.ID
		b.Measurements[i].PhotometerID = b.Photometer.ID
		b.Measurements[i].ObservationID = b.Observation.ID
	}
	f.batches = append(f.batches, b)
	return nil
}

func (f *fakeStore) Bundle(_ context.Context, _ string) (*store.Bundle, error) {
	return nil, store.ErrNotFound
}

func (f *fakeStore) ListObservations(_ context.Context) ([]store.Summary, error) { return nil, nil }
func (f *fakeStore) Migrate(_ context.Context) error                             { return nil }
func (f *fakeStore) Close() error                                                { return nil }

// cannedResolver returns a fixed place and counts calls.
type cannedResolver struct {
	place *geo.Place
	err   error
	calls int
}

func (r *cannedResolver) Reverse(_ context.Context, _, _ float64) (*geo.Place, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.place, nil
}

func testPlace() *geo.Place {
	return &geo.Place{
		PlaceSuggestion: "Observatorio",
		PopCentre:       "Villaverde",
		SubRegion:       "Guadalajara",
		Region:          "Castilla-La Mancha",
		Country:         "Spain",
		Timezone:        "Europe/Madrid",
	}
}

const legacyTASFile = `# %ECSV 1.0
# ---
# datatype:
# - {name: ind, datatype: int64}
# - {name: UT_Datetime, datatype: string}
# - {name: Azi, datatype: float64}
# - {name: Alt, datatype: float64}
# - {name: Mag, datatype: float64}
# - {name: Hz, datatype: float64}
# - {name: Temp_IR, datatype: float64}
# - {name: T_sens, datatype: float64}
# meta:
#   keywords:
#     photometer: TAS01
#     author: Jane Doe
#     association: AAM
#     comments: Calibration constant ZP:12.34 applied
#     place: Villaverde del Ducado
#     longitude: "-2.504"
#     latitude: "41.0022"
#     height: "1100"
#     measurements_file: tas_session.txt
# delimiter: ' '
ind UT_Datetime Azi Alt Mag Hz Temp_IR T_sens
1 "2024-08-12 21:30:00" 0.0 10.0 21.5 12.3 4.5 11.2
2 "2024-08-12 21:31:00" 90.0 20.0 21.4 12.1 4.4 11.4
3 "2024-08-12 21:32:00" 180.0 30.0 21.2 12.0 4.3 11.6
`

// legacyTASGPSFile is a legacy file whose rows carry their own GPS fix on
// top of the keyword coordinates.
const legacyTASGPSFile = `# %ECSV 1.0
# ---
# datatype:
# - {name: ind, datatype: int64}
# - {name: UT_Datetime, datatype: string}
# - {name: Azi, datatype: float64}
# - {name: Alt, datatype: float64}
# - {name: Mag, datatype: float64}
# - {name: Hz, datatype: float64}
# - {name: Temp_IR, datatype: float64}
# - {name: T_sens, datatype: float64}
# - {name: Long, datatype: float64}
# - {name: Lat, datatype: float64}
# - {name: SL, datatype: float64}
# meta:
#   keywords:
#     photometer: TAS01
#     author: Jane Doe
#     association: AAM
#     comments: Calibration constant ZP:12.34 applied
#     place: Villaverde del Ducado
#     longitude: "-2.6"
#     latitude: "41.1"
#     height: "1000"
#     measurements_file: tas_gps_session.txt
# delimiter: ' '
ind UT_Datetime Azi Alt Mag Hz Temp_IR T_sens Long Lat SL
1 "2024-08-12 21:30:00" 0.0 10.0 21.5 12.3 4.5 11.2 -2.505 41.0021 1100
2 "2024-08-12 21:31:00" 90.0 20.0 21.4 12.1 4.4 11.4 -2.504 41.0022 1101
3 "2024-08-12 21:32:00" 180.0 30.0 21.2 12.0 4.3 11.6 -2.503 41.0023 1099
`

const currentTASFile = `# %ECSV 1.0
# ---
# datatype:
# - {name: ind, datatype: int64}
# - {name: Datetime, datatype: string}
# - {name: UT_Datetime, datatype: string}
# - {name: Temp_IR, datatype: float64, unit: deg_C}
# - {name: T_sens, datatype: float64, unit: deg_C}
# - {name: Mag, datatype: float64}
# - {name: Hz, datatype: float64, unit: Hz}
# - {name: Alt, datatype: float64, unit: deg}
# - {name: Azi, datatype: float64, unit: deg}
# - {name: Lat, datatype: float64, unit: deg}
# - {name: Long, datatype: float64, unit: deg}
# - {name: SL, datatype: float64, unit: m}
# - {name: VBat, datatype: float64, unit: V}
# meta:
#   Observer:
#     type: Person
#     name: Jane Doe
#     affiliation: AAM
#     valid_since: 2024-01-01T00:00:00
#     valid_until: 2999-12-31T00:00:00
#     valid_state: Current
#   Location:
#     longitude: -2.504
#     latitude: 41.0022
#     masl: 1100.0
#     coords_meas: Median
#     place: Villaverde del Ducado
#     town: Villaverde
#     sub_region: Guadalajara
#     region: Castilla-La Mancha
#     country: Spain
#     timezone: Europe/Madrid
#   Photometer:
#     model: TAS
#     name: TAS01
#     sensor: TSL237
#     zero_point: 20.44
#     fov: 17.0
#   Observation:
#     identifier: tas_session
#     digest: abc123
#     temperature_1: 11.4
#     temperature_meas: Median
#     humidity_meas: Unknown
#     timestamp_meas: Unique
# delimiter: ','
ind,Datetime,UT_Datetime,Temp_IR,T_sens,Mag,Hz,Alt,Azi,Lat,Long,SL,VBat
1,2024-08-12T23:30:00,2024-08-12T21:30:00,4.5,11.2,21.5,12.3,10,0,41.0022,-2.504,1100,12.6
2,2024-08-12T23:31:00,2024-08-12T21:31:00,4.4,11.4,21.4,12.1,20,90,41.0022,-2.504,1100,12.6
3,2024-08-12T23:32:00,2024-08-12T21:32:00,4.3,11.6,21.2,12.0,30,180,41.0022,-2.504,1100,12.5
`

func TestIngest_CurrentSchema(t *testing.T) {
	st := newFakeStore()
	resolver := &cannedResolver{place: testPlace()}
	coord := NewCoordinator(st, resolver)

	obs, err := coord.Ingest(context.Background(), "tas_session.ecsv", []byte(currentTASFile))
	require.NoError(t, err)

	assert.Equal(t, "abc123", obs.Digest)
	assert.Equal(t, "tas_session", obs.Identifier)
	assert.NotZero(t, obs.ID)

	// Self-describing metadata never triggers geocoding.
	assert.Equal(t, 0, resolver.calls)

	require.Len(t, st.batches, 1)
	b := st.batches[0]
	assert.Equal(t, "TAS01", b.Photometer.Name)
	assert.Equal(t, model.PhotometerTAS, b.Photometer.Model)
	assert.Equal(t, "Europe/Madrid", b.Location.Timezone)

	require.Len(t, b.Measurements, 3)
	for i, want := range []float64{80, 70, 60} {
		assert.Equal(t, want, b.Measurements[i].Zenital)
		assert.Equal(t, 90.0-b.Measurements[i].Altitude, b.Measurements[i].Zenital)
	}
	assert.Equal(t, 20240812, b.Measurements[0].DateID)
	assert.Equal(t, 213000, b.Measurements[0].TimeID)
}

func TestIngest_DuplicateContent(t *testing.T) {
	st := newFakeStore()
	coord := NewCoordinator(st, &cannedResolver{place: testPlace()})

	first, err := coord.Ingest(context.Background(), "tas_session.ecsv", []byte(currentTASFile))
	require.NoError(t, err)

	_, err = coord.Ingest(context.Background(), "renamed_copy.ecsv", []byte(currentTASFile))
	var dup *store.DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "abc123", dup.Existing.Digest)
	assert.Equal(t, first.Identifier, dup.Existing.Identifier)

	// Nothing new was written.
	assert.Len(t, st.observations, 1)
	assert.Len(t, st.batches, 1)
}

func TestIngest_LegacyZeroPoint(t *testing.T) {
	st := newFakeStore()
	coord := NewCoordinator(st, &cannedResolver{place: testPlace()})

	obs, err := coord.Ingest(context.Background(), "tas_session.ecsv", []byte(legacyTASFile))
	require.NoError(t, err)
	assert.Equal(t, "tas_session", obs.Identifier)
	assert.Equal(t, Digest([]byte(legacyTASFile)), obs.Digest)

	require.Len(t, st.photometers, 1)
	p := st.photometers[0]
	require.NotNil(t, p.ZeroPoint)
	assert.Equal(t, 12.34, *p.ZeroPoint)
	require.NotNil(t, p.Fov)
	assert.Equal(t, 17.0, *p.Fov)

	// Aggregate temperature is the median of the sensor column.
	require.NotNil(t, obs.Temperature1)
	assert.Equal(t, 11.4, *obs.Temperature1)
	assert.Equal(t, model.TemperatureMedian, obs.TemperatureMeas)
	assert.Equal(t, model.TimestampUnique, obs.TimestampMeas)

	// Location comes from the header keywords plus the resolved place.
	require.Len(t, st.locations, 1)
	l := st.locations[0]
	assert.Equal(t, -2.504, l.Longitude)
	assert.Equal(t, 41.0022, l.Latitude)
	assert.Equal(t, model.CoordinatesSingle, l.CoordsMeas)
	require.NotNil(t, l.Masl)
	assert.Equal(t, 1100.0, *l.Masl)
	assert.Equal(t, "Villaverde del Ducado", l.Place)
	assert.Equal(t, "Villaverde", l.Town)
}

func TestIngest_LegacyRowGPSMedians(t *testing.T) {
	st := newFakeStore()
	coord := NewCoordinator(st, &cannedResolver{place: testPlace()})

	_, err := coord.Ingest(context.Background(), "tas_gps_session.ecsv", []byte(legacyTASGPSFile))
	require.NoError(t, err)

	// Per-row GPS fixes take precedence over the keyword coordinates and
	// aggregate as medians.
	require.Len(t, st.locations, 1)
	l := st.locations[0]
	assert.Equal(t, -2.504, l.Longitude)
	assert.Equal(t, 41.0022, l.Latitude)
	assert.Equal(t, model.CoordinatesMedian, l.CoordsMeas)
	require.NotNil(t, l.Masl)
	assert.Equal(t, 1100.0, *l.Masl)
}

func TestIngest_GeocodeFailureAborts(t *testing.T) {
	st := newFakeStore()
	resolver := &cannedResolver{err: nominatim.ErrNoResult}
	coord := NewCoordinator(st, resolver)

	_, err := coord.Ingest(context.Background(), "tas_session.ecsv", []byte(legacyTASFile))
	require.ErrorIs(t, err, nominatim.ErrNoResult)

	// No partial state of any kind.
	assert.Empty(t, st.observations)
	assert.Empty(t, st.locations)
	assert.Empty(t, st.observers)
	assert.Empty(t, st.batches)
}

func TestIngest_OneGeocodeCallPerCoordinate(t *testing.T) {
	st := newFakeStore()
	resolver := &cannedResolver{place: testPlace()}
	coord := NewCoordinator(st, resolver)

	_, err := coord.Ingest(context.Background(), "tas_session.ecsv", []byte(legacyTASFile))
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.calls)

	// Same coordinates, different content: the stored location short
	// circuits the second lookup.
	other := legacyTASFile + `4 "2024-08-12 21:33:00" 270.0 40.0 21.1 11.9 4.2 11.8` + "\n"
	_, err = coord.Ingest(context.Background(), "tas_session2.ecsv", []byte(other))
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.calls)

	assert.Len(t, st.locations, 1)
	assert.Len(t, st.observations, 2)
}

func TestIngest_DimensionConflictRetries(t *testing.T) {
	st := newFakeStore()
	st.conflictsLeft = 1
	coord := NewCoordinator(st, &cannedResolver{place: testPlace()})

	obs, err := coord.Ingest(context.Background(), "tas_session.ecsv", []byte(currentTASFile))
	require.NoError(t, err)
	assert.NotZero(t, obs.ID)
	assert.Len(t, st.observations, 1)
}

func TestIngest_ConflictRetryKeepsGeocodeResult(t *testing.T) {
	st := newFakeStore()
	st.conflictsLeft = 1
	resolver := &cannedResolver{place: testPlace()}
	coord := NewCoordinator(st, resolver)

	// The location is still unstored when the retry re-resolves; the first
	// geocode result must be reused, not fetched again.
	obs, err := coord.Ingest(context.Background(), "tas_session.ecsv", []byte(legacyTASFile))
	require.NoError(t, err)
	assert.NotZero(t, obs.ID)
	assert.Equal(t, 1, resolver.calls)

	require.Len(t, st.locations, 1)
	assert.Equal(t, "Europe/Madrid", st.locations[0].Timezone)
}

func TestIngest_DimensionConflictGivesUpAfterRetry(t *testing.T) {
	st := newFakeStore()
	st.conflictsLeft = 2
	coord := NewCoordinator(st, &cannedResolver{place: testPlace()})

	_, err := coord.Ingest(context.Background(), "tas_session.ecsv", []byte(currentTASFile))
	var conflict *store.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Empty(t, st.observations)
}

func TestIngest_MalformedFile(t *testing.T) {
	st := newFakeStore()
	coord := NewCoordinator(st, &cannedResolver{place: testPlace()})

	_, err := coord.Ingest(context.Background(), "garbage.ecsv", []byte("not an ecsv file"))
	require.Error(t, err)
	var parseErr *ecsv.ParseError
	assert.ErrorAs(t, err, &parseErr)
	assert.Empty(t, st.batches)
}

func TestIngest_ReusesExistingDimensions(t *testing.T) {
	st := newFakeStore()
	coord := NewCoordinator(st, &cannedResolver{place: testPlace()})

	_, err := coord.Ingest(context.Background(), "tas_session.ecsv", []byte(legacyTASFile))
	require.NoError(t, err)

	// Second file by the same observer with the same photometer at the
	// same site: only a new observation and measurements are created.
	other := legacyTASFile + `4 "2024-08-12 21:33:00" 270.0 40.0 21.1 11.9 4.2 11.8` + "\n"
	_, err = coord.Ingest(context.Background(), "tas_session2.ecsv", []byte(other))
	require.NoError(t, err)

	assert.Len(t, st.observers, 1)
	assert.Len(t, st.photometers, 1)
	assert.Len(t, st.locations, 1)
	assert.Len(t, st.observations, 2)
}
