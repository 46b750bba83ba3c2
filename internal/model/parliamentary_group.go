package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
)

// ParliamentaryGroup is a caucus (会派) within a governing body. Chamber
// separates otherwise identical names when two houses share one governing
// body; (Name, GoverningBodyID, Chamber) is unique.
type ParliamentaryGroup struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	GoverningBodyID  int64      `json:"governing_body_id"`
	Chamber          string     `json:"chamber"`
	URL              *string    `json:"url,omitempty"`
	Description      *string    `json:"description,omitempty"`
	IsActive         bool       `json:"is_active"`
	PoliticalPartyID *int64     `json:"political_party_id,omitempty"`
	StartDate        *time.Time `json:"start_date,omitempty"`
	EndDate          *time.Time `json:"end_date,omitempty"`
}

// groupFields has the fields of ParliamentaryGroup without its JSON methods.
type groupFields ParliamentaryGroup

// MarshalJSON writes start_date and end_date as YYYY-MM-DD.
func (g ParliamentaryGroup) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		groupFields
		StartDate *string `json:"start_date,omitempty"`
		EndDate   *string `json:"end_date,omitempty"`
	}{groupFields(g), formatDatePtr(g.StartDate), formatDatePtr(g.EndDate)})
}

// UnmarshalJSON reads YYYY-MM-DD period bounds. RFC 3339 timestamps are
// accepted and truncated to their calendar day.
func (g *ParliamentaryGroup) UnmarshalJSON(data []byte) error {
	aux := struct {
		*groupFields
		StartDate *string `json:"start_date"`
		EndDate   *string `json:"end_date"`
	}{groupFields: (*groupFields)(g)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	start, err := parseJSONDate(aux.StartDate)
	if err != nil {
		return eris.Wrap(err, "start_date")
	}
	end, err := parseJSONDate(aux.EndDate)
	if err != nil {
		return eris.Wrap(err, "end_date")
	}
	g.StartDate, g.EndDate = start, end
	return nil
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(DateLayout)
	return &s
}

func parseJSONDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	if d, err := time.Parse(DateLayout, *s); err == nil {
		return &d, nil
	}
	ts, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, eris.Errorf("invalid date %q: expected YYYY-MM-DD", *s)
	}
	d := TruncateDate(ts)
	return &d, nil
}

// NewParliamentaryGroup builds an active group and validates its period.
func NewParliamentaryGroup(name string, governingBodyID int64, chamber string, start, end *time.Time) (*ParliamentaryGroup, error) {
	if err := ValidatePeriod(start, end); err != nil {
		return nil, err
	}
	return &ParliamentaryGroup{
		Name:            name,
		GoverningBodyID: governingBodyID,
		Chamber:         chamber,
		IsActive:        true,
		StartDate:       start,
		EndDate:         end,
	}, nil
}

// IsActiveAsOf reports whether the group was valid on the given day.
func (g *ParliamentaryGroup) IsActiveAsOf(asOf time.Time) bool {
	return ActiveAsOf(g.StartDate, g.EndDate, g.IsActive, asOf)
}

// OverlapsWith reports whether the group was valid at any point in [from, to].
func (g *ParliamentaryGroup) OverlapsWith(from time.Time, to *time.Time) bool {
	return OverlapsPeriod(g.StartDate, g.EndDate, g.IsActive, from, to)
}

// UpdatePeriod replaces the validity period after validating it.
func (g *ParliamentaryGroup) UpdatePeriod(start, end *time.Time) error {
	if err := ValidatePeriod(start, end); err != nil {
		return err
	}
	g.StartDate = start
	g.EndDate = end
	return nil
}

func (g *ParliamentaryGroup) String() string {
	if g.Chamber == "" {
		return g.Name
	}
	return g.Name + " (" + g.Chamber + ")"
}

// NormalizeGroupName folds full-width ASCII and compatibility forms (NFKC)
// and trims surrounding space so that scraped names match seeded ones.
func NormalizeGroupName(name string) string {
	return strings.TrimSpace(norm.NFKC.String(name))
}
