package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sagebase/sagebase/internal/model"
)

// whereBuilder accumulates AND-ed conditions with backend-specific placeholders.
type whereBuilder struct {
	ph    placeholderFunc
	conds []string
	args  []any
}

func newWhere(ph placeholderFunc) *whereBuilder {
	return &whereBuilder{ph: ph}
}

// add appends a condition; each %s in cond becomes the next placeholder.
func (w *whereBuilder) add(cond string, args ...any) {
	marks := make([]any, len(args))
	for i := range args {
		marks[i] = w.ph(len(w.args) + i + 1)
	}
	w.conds = append(w.conds, fmt.Sprintf(cond, marks...))
	w.args = append(w.args, args...)
}

func (w *whereBuilder) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// next returns the placeholder following the accumulated args.
func (w *whereBuilder) next(offset int) string {
	return w.ph(len(w.args) + offset)
}

func logFilterWhere(f model.ExtractionLogFilter, ph placeholderFunc) *whereBuilder {
	w := newWhere(ph)
	if f.EntityType != "" {
		w.add("entity_type = %s", string(f.EntityType))
	}
	if f.EntityID > 0 {
		w.add("entity_id = %s", f.EntityID)
	}
	if f.PipelineVersion != "" {
		w.add("pipeline_version = %s", f.PipelineVersion)
	}
	if f.DateFrom != nil {
		w.add("created_at >= %s", f.DateFrom.UTC())
	}
	if f.DateTo != nil {
		w.add("created_at <= %s", f.DateTo.UTC())
	}
	if f.MinConfidence != nil {
		w.add("confidence_score >= %s", *f.MinConfidence)
	}
	return w
}

// groupQueryWhere renders the membership predicate. With an as-of date the
// period decides and the flag only matters for rows without any dates.
func groupQueryWhere(q GroupQuery, ph placeholderFunc, date func(time.Time) any) *whereBuilder {
	w := newWhere(ph)
	w.add("governing_body_id = %s", q.GoverningBodyID)
	if q.Chamber != nil {
		w.add("chamber = %s", *q.Chamber)
	}
	if q.PoliticalPartyID != nil {
		w.add("political_party_id = %s", *q.PoliticalPartyID)
	}
	switch {
	case q.AsOf != nil:
		d := date(model.TruncateDate(*q.AsOf))
		w.add("(start_date IS NULL OR start_date <= %s)", d)
		w.add("(end_date IS NULL OR end_date >= %s)", d)
		w.add("(start_date IS NOT NULL OR end_date IS NOT NULL OR is_active)")
	case q.ActiveOnly:
		w.add("is_active")
	}
	return w
}

// jsonObject marshals m, storing an empty object rather than null.
func jsonObject(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, eris.Wrap(err, "marshal json")
	}
	return b, nil
}

// prepareLog validates l and fills its timestamps. Timestamps are stored in
// UTC so that range filters and per-day counts compare like with like.
func prepareLog(l *model.ExtractionLog, now time.Time) error {
	if err := l.Validate(); err != nil {
		return err
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.CreatedAt = l.CreatedAt.UTC()
	l.UpdatedAt = now.UTC()
	return nil
}

// statsRow is one (entity_type, pipeline_version) aggregate.
type statsRow struct {
	entityType string
	pipeline   string
	count      int
	confSum    float64
	confCount  int
}

const statsGroupSQL = `SELECT entity_type, pipeline_version, count(*), COALESCE(sum(confidence_score), 0), count(confidence_score)
	FROM extraction_logs%s GROUP BY entity_type, pipeline_version`

func buildStatistics(rows []statsRow, daily []model.DailyCount) *model.ExtractionStatistics {
	stats := &model.ExtractionStatistics{
		ByEntityType:         make(map[string]int),
		ByPipelineVersion:    make(map[string]int),
		ConfidenceByPipeline: make(map[string]float64),
		DailyCounts:          daily,
	}
	if stats.DailyCounts == nil {
		stats.DailyCounts = []model.DailyCount{}
	}

	var confSum float64
	var confCount int
	pipeSum := make(map[string]float64)
	pipeCount := make(map[string]int)
	for _, r := range rows {
		stats.TotalCount += r.count
		stats.ByEntityType[r.entityType] += r.count
		stats.ByPipelineVersion[r.pipeline] += r.count
		confSum += r.confSum
		confCount += r.confCount
		pipeSum[r.pipeline] += r.confSum
		pipeCount[r.pipeline] += r.confCount
	}
	if confCount > 0 {
		avg := confSum / float64(confCount)
		stats.AverageConfidence = &avg
	}
	for p, n := range pipeCount {
		if n > 0 {
			stats.ConfidenceByPipeline[p] = pipeSum[p] / float64(n)
		}
	}
	return stats
}

// prepareGroup normalises the name and rejects inverted periods.
func prepareGroup(g *model.ParliamentaryGroup) error {
	g.Name = model.NormalizeGroupName(g.Name)
	if g.Name == "" {
		return eris.New("parliamentary group name is required")
	}
	if g.GoverningBodyID <= 0 {
		return eris.Errorf("invalid governing body id %d for group %q", g.GoverningBodyID, g.Name)
	}
	return model.ValidatePeriod(g.StartDate, g.EndDate)
}

func touchSpeaker(s *model.Speaker, now time.Time) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
}
