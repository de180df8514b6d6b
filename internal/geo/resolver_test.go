package geo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stars4all/nixnox-cli/internal/model"
	"github.com/stars4all/nixnox-cli/pkg/nominatim"
)

type fakeClient struct {
	addr  *nominatim.Address
	err   error
	calls int
}

func (f *fakeClient) Reverse(_ context.Context, _, _ float64) (*nominatim.Address, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.addr, nil
}

type fixedTZ string

func (z fixedTZ) GetTimezoneName(_, _ float64) string { return string(z) }

func TestReverse_PlaceNamePriority(t *testing.T) {
	cases := []struct {
		name     string
		addr     nominatim.Address
		want     string
		wantKind string
	}{
		{
			name:     "leisure wins over everything",
			addr:     nominatim.Address{Leisure: "Observatorio", Amenity: "Centro", Road: "Calle Mayor"},
			want:     "Observatorio",
			wantKind: "leisure",
		},
		{
			name:     "road with house number",
			addr:     nominatim.Address{Road: "Calle Mayor", HouseNumber: "12"},
			want:     "Calle Mayor, 12",
			wantKind: "road + house_number",
		},
		{
			name:     "hamlet is last resort",
			addr:     nominatim.Address{Hamlet: "La Aldehuela"},
			want:     "La Aldehuela",
			wantKind: "hamlet",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewResolver(&fakeClient{addr: &tc.addr}, fixedTZ("Europe/Madrid"))
			p, err := r.Reverse(context.Background(), -2.5, 41.0)
			require.NoError(t, err)
			assert.Equal(t, tc.want, p.PlaceSuggestion)
			assert.Equal(t, tc.wantKind, p.PlaceType)
		})
	}
}

func TestReverse_PopCentrePriority(t *testing.T) {
	addr := &nominatim.Address{
		Municipality: "Sigüenza",
		City:         "Guadalajara",
	}
	r := NewResolver(&fakeClient{addr: addr}, fixedTZ("Europe/Madrid"))

	p, err := r.Reverse(context.Background(), -2.5, 41.0)
	require.NoError(t, err)
	assert.Equal(t, "Sigüenza", p.PopCentre)
	assert.Equal(t, model.PopCentreMunicipality, p.PopCentreType)
}

func TestReverse_UnknownFallbacks(t *testing.T) {
	r := NewResolver(&fakeClient{addr: &nominatim.Address{Country: "Spain"}}, fixedTZ(""))

	p, err := r.Reverse(context.Background(), -2.5, 41.0)
	require.NoError(t, err)

	assert.Empty(t, p.PlaceSuggestion)
	assert.Equal(t, Unknown, p.PopCentre)
	assert.Equal(t, Unknown, p.SubRegion)
	assert.Equal(t, Unknown, p.Region)
	assert.Equal(t, "Spain", p.Country)
	assert.Equal(t, Unknown, p.Timezone)
}

func TestReverse_SubRegionPriority(t *testing.T) {
	addr := &nominatim.Address{StateDistrict: "Comarca", Province: "Guadalajara", State: "Castilla-La Mancha"}
	r := NewResolver(&fakeClient{addr: addr}, fixedTZ("Europe/Madrid"))

	p, err := r.Reverse(context.Background(), -2.5, 41.0)
	require.NoError(t, err)
	assert.Equal(t, "Comarca", p.SubRegion)
	assert.Equal(t, "state_district", p.SubRegionType)
	assert.Equal(t, "Castilla-La Mancha", p.Region)
	assert.Equal(t, "Europe/Madrid", p.Timezone)
}

func TestReverse_NoResultPropagates(t *testing.T) {
	r := NewResolver(&fakeClient{err: nominatim.ErrNoResult}, fixedTZ("Europe/Madrid"))

	_, err := r.Reverse(context.Background(), -2.5, 41.0)
	assert.ErrorIs(t, err, nominatim.ErrNoResult)
}

func TestNormalize_NFC(t *testing.T) {
	// "ü" as u followed by combining diaeresis must normalize to the
	// composed form so natural keys compare byte-stable.
	decomposed := "Sigüenza"
	addr := &nominatim.Address{Village: decomposed, Country: "Spain"}
	r := NewResolver(&fakeClient{addr: addr}, fixedTZ("Europe/Madrid"))

	p, err := r.Reverse(context.Background(), -2.5, 41.0)
	require.NoError(t, err)
	assert.Equal(t, "Sigüenza", p.PopCentre)
	assert.NotEqual(t, decomposed, p.PopCentre)
}
