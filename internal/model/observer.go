package model

import "time"

// MetaTimeLayout is the timestamp layout used in exported table metadata.
const MetaTimeLayout = "2006-01-02T15:04:05"

// ValidUntilForever is the validity-window sentinel for current affiliations.
var ValidUntilForever = time.Date(2999, time.December, 31, 0, 0, 0, 0, time.UTC)

// Observer is a person or organization that recorded observations.
// Persons are keyed by (name, valid_since, valid_until) so that changing
// affiliations over time yields distinct rows; organizations by name alone.
// Ingestion creates observers lazily and never updates an existing row.
type Observer struct {
	ID          int64        `json:"id,omitempty"`
	Type        ObserverType `json:"type"`
	Name        string       `json:"name"`
	Nickname    *string      `json:"nickname,omitempty"`
	Affiliation *string      `json:"affiliation,omitempty"`
	Acronym     *string      `json:"acronym,omitempty"`
	WebsiteURL  *string      `json:"website_url,omitempty"`
	Email       *string      `json:"email,omitempty"`
	ValidSince  time.Time    `json:"valid_since"`
	ValidUntil  time.Time    `json:"valid_until"`
	ValidState  ValidState   `json:"valid_state"`
}

// Meta returns the observer's exported table-metadata representation.
func (o *Observer) Meta() map[string]any {
	return map[string]any{
		"type":        string(o.Type),
		"name":        o.Name,
		"nickname":    deref(o.Nickname),
		"affiliation": deref(o.Affiliation),
		"acronym":     deref(o.Acronym),
		"website_url": deref(o.WebsiteURL),
		"email":       deref(o.Email),
		"valid_since": o.ValidSince.UTC().Format(MetaTimeLayout),
		"valid_until": o.ValidUntil.UTC().Format(MetaTimeLayout),
		"valid_state": string(o.ValidState),
	}
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
