// Package zone maps coordinates to districts and districts to the regional
// authority that owns them.
package zone

import (
	"context"
	"fmt"
	"strings"

	"github.com/couchcryptid/incident-triage-service/internal/domain"
)

// Unknown is returned by place-name lookups that match nothing.
const Unknown = "Unknown"

// Regional authorities.
const (
	AuthorityNorth   = "North Kerala Disaster Response Authority"
	AuthorityMalabar = "Malabar Central Disaster Response Authority"
	AuthorityCentral = "Central Kerala Disaster Response Authority"
	AuthoritySouth   = "South Kerala Disaster Response Authority"
)

// District is one row of the closed district table.
type District struct {
	Name              string `json:"name"`
	Authority         string `json:"authority"`
	PopulationDensity string `json:"population_density"`
	DisasterProne     bool   `json:"disaster_prone"`
}

// districts lists every district exactly once, north to south.
var districts = []District{
	{"Kasaragod", AuthorityNorth, domain.DensityMedium, false},
	{"Kannur", AuthorityNorth, domain.DensityMedium, false},
	{"Wayanad", AuthorityNorth, domain.DensityLow, true},
	{"Kozhikode", AuthorityNorth, domain.DensityHigh, false},
	{"Malappuram", AuthorityMalabar, domain.DensityHigh, false},
	{"Palakkad", AuthorityMalabar, domain.DensityMedium, false},
	{"Thrissur", AuthorityMalabar, domain.DensityHigh, false},
	{"Ernakulam", AuthorityCentral, domain.DensityHigh, false},
	{"Idukki", AuthorityCentral, domain.DensityLow, true},
	{"Kottayam", AuthorityCentral, domain.DensityMedium, false},
	{"Alappuzha", AuthorityCentral, domain.DensityHigh, true},
	{"Pathanamthitta", AuthoritySouth, domain.DensityLow, false},
	{"Kollam", AuthoritySouth, domain.DensityHigh, false},
	{"Thiruvananthapuram", AuthoritySouth, domain.DensityHigh, false},
}

// aliases maps common alternate spellings to canonical district names.
var aliases = map[string]string{
	"trivandrum": "Thiruvananthapuram",
	"tvm":        "Thiruvananthapuram",
	"kochi":      "Ernakulam",
	"cochin":     "Ernakulam",
	"calicut":    "Kozhikode",
	"alleppey":   "Alappuzha",
	"quilon":     "Kollam",
	"trichur":    "Thrissur",
	"palghat":    "Palakkad",
	"cannanore":  "Kannur",
	"kasargod":   "Kasaragod",
}

var byKey = func() map[string]District {
	m := make(map[string]District, len(districts))
	for _, d := range districts {
		m[strings.ToLower(d.Name)] = d
	}
	return m
}()

// Districts returns a copy of the district table.
func Districts() []District {
	out := make([]District, len(districts))
	copy(out, districts)
	return out
}

// Canonical returns the canonical district for a place name, accepting
// aliases, any letter case, and a trailing "district".
func Canonical(name string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.TrimSpace(strings.TrimSuffix(key, " district"))
	if alias, ok := aliases[key]; ok {
		return alias, true
	}
	d, ok := byKey[key]
	if !ok {
		return "", false
	}
	return d.Name, true
}

// AuthorityFor returns the authority that owns district.
func AuthorityFor(district string) (string, error) {
	name, ok := Canonical(district)
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownDistrict, district)
	}
	return byKey[strings.ToLower(name)].Authority, nil
}

// Authorities returns the four regional authorities in north-to-south order.
func Authorities() []string {
	return []string{AuthorityNorth, AuthorityMalabar, AuthorityCentral, AuthoritySouth}
}

// Profiles supplies per-district context baselines from the district table
// plus the set of districts currently under a disaster declaration.
type Profiles struct {
	declared map[string]bool
}

// NewProfiles creates Profiles with the given declared disaster districts.
// Names that are not districts are ignored.
func NewProfiles(declared []string) *Profiles {
	p := &Profiles{declared: make(map[string]bool, len(declared))}
	for _, name := range declared {
		if canon, ok := Canonical(name); ok {
			p.declared[canon] = true
		}
	}
	return p
}

// Conditions returns the baseline conditions for district. Weather is left
// unset so the context model applies its default tier.
func (p *Profiles) Conditions(_ context.Context, district string) (domain.Conditions, error) {
	name, ok := Canonical(district)
	if !ok {
		return domain.Conditions{}, fmt.Errorf("%w: %q", domain.ErrUnknownDistrict, district)
	}
	return domain.Conditions{
		PopulationDensity: byKey[strings.ToLower(name)].PopulationDensity,
		DisasterZone:      p.declared[name],
	}, nil
}
