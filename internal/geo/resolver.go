// Package geo resolves coordinates to a normalized place hierarchy using a
// reverse geocoding service plus an offline timezone index.
package geo

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/stars4all/nixnox-cli/internal/model"
	"github.com/stars4all/nixnox-cli/pkg/nominatim"
)

// Unknown is the sentinel stored wherever the service has no value, keeping
// the non-null locality constraints satisfiable.
const Unknown = "Unknown"

// Place is the resolved hierarchy for a coordinate pair. PlaceSuggestion is a
// best-guess site name; ingestion prefers the name given in the file and uses
// the suggestion only when the file carries none.
type Place struct {
	PlaceSuggestion string
	PlaceType       string
	PopCentre       string
	PopCentreType   model.PopulationCentre
	SubRegion       string
	SubRegionType   string
	Region          string
	Country         string
	Timezone        string
}

// Resolver turns a coordinate pair into a Place. Implementations must only be
// invoked for coordinates with no stored Location row; the entity resolver
// checks storage first.
type Resolver interface {
	Reverse(ctx context.Context, longitude, latitude float64) (*Place, error)
}

// TimezoneFinder computes an IANA timezone identifier from a coordinate,
// independently of the geocoding service. Satisfied by tzf.Finder.
type TimezoneFinder interface {
	GetTimezoneName(lng, lat float64) string
}

// NominatimResolver implements Resolver over a Nominatim client.
type NominatimResolver struct {
	client nominatim.Client
	tz     TimezoneFinder
}

// NewResolver creates a NominatimResolver. The client carries the shared rate
// limiter; pass the same instance to every concurrent ingestion.
func NewResolver(client nominatim.Client, tz TimezoneFinder) *NominatimResolver {
	return &NominatimResolver{client: client, tz: tz}
}

// popCentrePriority is the first-match-wins category order for the
// population-centre name.
var popCentrePriority = []model.PopulationCentre{
	model.PopCentreVillage,
	model.PopCentreMunicipality,
	model.PopCentreTown,
	model.PopCentreCity,
}

func (r *NominatimResolver) Reverse(ctx context.Context, longitude, latitude float64) (*Place, error) {
	addr, err := r.client.Reverse(ctx, latitude, longitude)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: reverse (%f, %f)", longitude, latitude)
	}

	p := &Place{}
	p.PlaceSuggestion, p.PlaceType = placeName(addr)
	if p.PlaceSuggestion != "" {
		zap.L().Info("place name proposal",
			zap.String("place", p.PlaceSuggestion),
			zap.String("type", p.PlaceType),
		)
	}

	for _, pc := range popCentrePriority {
		if v := popCentreField(addr, pc); v != "" {
			p.PopCentre, p.PopCentreType = v, pc
			break
		}
	}
	for _, sr := range []struct{ value, kind string }{
		{addr.StateDistrict, "state_district"},
		{addr.Province, "province"},
	} {
		if sr.value != "" {
			p.SubRegion, p.SubRegionType = sr.value, sr.kind
			break
		}
	}
	p.Region = addr.State
	p.Country = addr.Country
	p.Timezone = r.tz.GetTimezoneName(longitude, latitude)

	normalize(p)
	return p, nil
}

// placeName picks the site name from the priority-ordered place-type
// categories, first match wins. Road names get the house number appended.
func placeName(addr *nominatim.Address) (name, kind string) {
	for _, c := range []struct{ value, kind string }{
		{addr.Leisure, "leisure"},
		{addr.Amenity, "amenity"},
		{addr.Tourism, "tourism"},
		{addr.Building, "building"},
		{addr.Road, "road"},
		{addr.Hamlet, "hamlet"},
	} {
		if c.value == "" {
			continue
		}
		if c.kind == "road" && addr.HouseNumber != "" {
			return c.value + ", " + addr.HouseNumber, "road + house_number"
		}
		return c.value, c.kind
	}
	return "", ""
}

func popCentreField(addr *nominatim.Address, pc model.PopulationCentre) string {
	switch pc {
	case model.PopCentreVillage:
		return addr.Village
	case model.PopCentreMunicipality:
		return addr.Municipality
	case model.PopCentreTown:
		return addr.Town
	case model.PopCentreCity:
		return addr.City
	default:
		return ""
	}
}

// normalize applies NFC so natural-key comparisons are byte-stable across
// differently encoded files, and fills the Unknown sentinel for every field
// the service could not supply.
func normalize(p *Place) {
	for _, f := range []*string{
		&p.PlaceSuggestion, &p.PopCentre, &p.SubRegion, &p.Region, &p.Country, &p.Timezone,
	} {
		*f = norm.NFC.String(*f)
	}
	for _, f := range []*string{&p.PopCentre, &p.SubRegion, &p.Region, &p.Country, &p.Timezone} {
		if *f == "" {
			*f = Unknown
		}
	}
}
