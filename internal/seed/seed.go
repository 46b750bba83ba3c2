// Package seed loads curated parliamentary group definitions from YAML and
// upserts them into the store.
package seed

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sagebase/sagebase/internal/model"
)

// File is the parsed content of a seed file.
type File struct {
	Defaults Defaults     `yaml:"defaults"`
	Groups   []GroupEntry `yaml:"groups"`
}

// Defaults apply to every entry that leaves the field unset.
type Defaults struct {
	GoverningBodyID int64  `yaml:"governing_body_id"`
	Chamber         string `yaml:"chamber"`
}

// GroupEntry is one group as written in YAML. Dates are YYYY-MM-DD.
type GroupEntry struct {
	Name             string  `yaml:"name"`
	GoverningBodyID  int64   `yaml:"governing_body_id"`
	Chamber          *string `yaml:"chamber"`
	URL              *string `yaml:"url"`
	Description      *string `yaml:"description"`
	IsActive         *bool   `yaml:"is_active"`
	PoliticalPartyID *int64  `yaml:"political_party_id"`
	StartDate        string  `yaml:"start_date"`
	EndDate          string  `yaml:"end_date"`
}

// Upserter is the store capability the loader writes through.
type Upserter interface {
	UpsertParliamentaryGroups(ctx context.Context, groups []model.ParliamentaryGroup) (int64, error)
}

// LoadFile reads and parses a seed file from disk.
func LoadFile(path string) ([]model.ParliamentaryGroup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: read %s", path)
	}
	groups, err := Parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: %s", path)
	}
	return groups, nil
}

// Parse decodes seed YAML. The document has a top-level
// "parliamentary_groups" key. Every entry is validated; the first invalid
// one fails the whole file.
func Parse(data []byte) ([]model.ParliamentaryGroup, error) {
	var wrapper struct {
		ParliamentaryGroups File `yaml:"parliamentary_groups"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "seed: parse yaml")
	}

	f := wrapper.ParliamentaryGroups
	seen := make(map[groupKey]int, len(f.Groups))
	groups := make([]model.ParliamentaryGroup, 0, len(f.Groups))
	for i, e := range f.Groups {
		g, err := e.toGroup(f.Defaults)
		if err != nil {
			return nil, eris.Wrapf(err, "seed: group %d (%q)", i, e.Name)
		}
		key := groupKey{g.Name, g.GoverningBodyID, g.Chamber}
		if prev, dup := seen[key]; dup {
			return nil, eris.Errorf("seed: group %d duplicates group %d (%s)", i, prev, g.String())
		}
		seen[key] = i
		groups = append(groups, *g)
	}
	return groups, nil
}

type groupKey struct {
	name            string
	governingBodyID int64
	chamber         string
}

func (e GroupEntry) toGroup(d Defaults) (*model.ParliamentaryGroup, error) {
	name := model.NormalizeGroupName(e.Name)
	if name == "" {
		return nil, eris.New("name is required")
	}

	gbID := e.GoverningBodyID
	if gbID == 0 {
		gbID = d.GoverningBodyID
	}
	if gbID <= 0 {
		return nil, eris.New("governing_body_id is required")
	}

	chamber := d.Chamber
	if e.Chamber != nil {
		chamber = *e.Chamber
	}

	start, err := optionalDate(e.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := optionalDate(e.EndDate)
	if err != nil {
		return nil, err
	}

	g, err := model.NewParliamentaryGroup(name, gbID, chamber, start, end)
	if err != nil {
		return nil, err
	}
	if e.IsActive != nil {
		g.IsActive = *e.IsActive
	}
	g.URL = e.URL
	g.Description = e.Description
	g.PoliticalPartyID = e.PoliticalPartyID
	return g, nil
}

func optionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := model.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Apply upserts groups and returns the number of rows written.
func Apply(ctx context.Context, st Upserter, groups []model.ParliamentaryGroup) (int64, error) {
	if len(groups) == 0 {
		return 0, nil
	}
	n, err := st.UpsertParliamentaryGroups(ctx, groups)
	if err != nil {
		return 0, eris.Wrap(err, "seed: upsert parliamentary groups")
	}
	zap.L().Info("seeded parliamentary groups",
		zap.Int("groups", len(groups)),
		zap.Int64("rows", n),
	)
	return n, nil
}
