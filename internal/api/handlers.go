package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sagebase/sagebase/internal/extraction"
	"github.com/sagebase/sagebase/internal/membership"
	"github.com/sagebase/sagebase/internal/model"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	gbID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	var mq membership.Query
	if mq.AsOf, err = dateParam(q.Get("as_of"), "as_of"); err != nil {
		writeError(w, r, err)
		return
	}
	activeOnly, err := boolParam(q.Get("active_only"), "active_only", true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	mq.IncludeInactive = !activeOnly
	if q.Has("chamber") {
		chamber := q.Get("chamber")
		mq.Chamber = &chamber
	}

	groups, err := s.resolver.GetByGoverningBody(r.Context(), gbID, mq)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"governing_body_id":    gbID,
		"parliamentary_groups": groups,
	})
}

func (s *Server) handleSearchLogs(w http.ResponseWriter, r *http.Request) {
	f, err := logFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := s.store.SearchExtractionLogs(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	l, err := s.store.GetExtractionLog(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleLogStats(w http.ResponseWriter, r *http.Request) {
	f, err := logFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := s.store.ExtractionStatistics(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type verificationRequest struct {
	Verified *bool `json:"verified"`
}

func (s *Server) handleSetVerification(w http.ResponseWriter, r *http.Request) {
	entityType, id, err := entityRef(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req verificationRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Verified == nil {
		writeError(w, r, invalid("verified is required"))
		return
	}

	if err := s.verifier.SetVerified(r.Context(), entityType, id, *req.Verified); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entity_type": entityType,
		"entity_id":   id,
		"verified":    *req.Verified,
	})
}

type extractionRequest struct {
	PipelineVersion  string          `json:"pipeline_version"`
	Result           json.RawMessage `json:"result"`
	ModelName        *string         `json:"model_name"`
	TokenCountInput  *int            `json:"token_count_input"`
	TokenCountOutput *int            `json:"token_count_output"`
	ProcessingTimeMS *int            `json:"processing_time_ms"`
	Metadata         map[string]any  `json:"extraction_metadata"`
}

func (s *Server) handleSubmitExtraction(w http.ResponseWriter, r *http.Request) {
	entityType, id, err := entityRef(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req extractionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	pipelineVersion := req.PipelineVersion
	if pipelineVersion == "" {
		pipelineVersion = s.opts.DefaultPipelineVersion
	}
	if pipelineVersion == "" {
		writeError(w, r, invalid("pipeline_version is required"))
		return
	}

	result, err := extraction.DecodeResult(entityType, req.Result)
	if err != nil {
		writeError(w, r, invalid(err.Error()))
		return
	}
	if c := result.Confidence(); c != nil && (*c < 0 || *c > 1) {
		writeError(w, r, invalid("confidence_score must be within [0,1]"))
		return
	}

	metadata := map[string]any{"request_id": getRequestID(r.Context())}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	ctx := extraction.WithLogDetails(r.Context(), extraction.LogDetails{
		ModelName:        req.ModelName,
		TokenCountInput:  req.TokenCountInput,
		TokenCountOutput: req.TokenCountOutput,
		ProcessingTimeMS: req.ProcessingTimeMS,
		Metadata:         metadata,
	})

	res, err := s.service.Apply(ctx, id, result, pipelineVersion)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return invalid("invalid request body")
	}
	return nil
}

func entityRef(r *http.Request) (model.EntityType, int64, error) {
	entityType, err := model.ParseEntityType(chi.URLParam(r, "type"))
	if err != nil {
		return "", 0, invalid(err.Error())
	}
	id, err := pathID(r, "id")
	if err != nil {
		return "", 0, err
	}
	return entityType, id, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid("invalid " + name)
	}
	return id, nil
}

func logFilter(r *http.Request) (model.ExtractionLogFilter, error) {
	q := r.URL.Query()
	var f model.ExtractionLogFilter
	var err error

	if v := q.Get("entity_type"); v != "" {
		if f.EntityType, err = model.ParseEntityType(v); err != nil {
			return f, invalid(err.Error())
		}
	}
	if f.EntityID, err = int64Param(q.Get("entity_id"), "entity_id"); err != nil {
		return f, err
	}
	f.PipelineVersion = q.Get("pipeline_version")
	if f.DateFrom, err = dateParam(q.Get("date_from"), "date_from"); err != nil {
		return f, err
	}
	if f.DateTo, err = dateParam(q.Get("date_to"), "date_to"); err != nil {
		return f, err
	}
	if f.DateTo != nil {
		// date_to names a whole day.
		end := f.DateTo.AddDate(0, 0, 1).Add(-time.Millisecond)
		f.DateTo = &end
	}
	if v := q.Get("min_confidence"); v != "" {
		c, perr := strconv.ParseFloat(v, 64)
		if perr != nil || c < 0 || c > 1 {
			return f, invalid("invalid min_confidence")
		}
		f.MinConfidence = &c
	}
	limit, err := int64Param(q.Get("limit"), "limit")
	if err != nil {
		return f, err
	}
	offset, err := int64Param(q.Get("offset"), "offset")
	if err != nil {
		return f, err
	}
	f.Limit, f.Offset = int(limit), int(offset)
	return f, nil
}

func int64Param(v, name string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, invalid("invalid " + name)
	}
	return n, nil
}

// boolParam parses v, returning def when the parameter is absent.
func boolParam(v, name string, def bool) (bool, error) {
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, invalid("invalid " + name)
	}
	return b, nil
}

func dateParam(v, name string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	d, err := model.ParseDate(v)
	if err != nil {
		return nil, invalid("invalid " + name + ": expected YYYY-MM-DD")
	}
	return &d, nil
}
