// Package extraction applies pipeline output to Gold entities. Every attempt
// is recorded in the extraction log; entities a human has verified are never
// overwritten.
package extraction

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sagebase/sagebase/internal/model"
	"github.com/sagebase/sagebase/internal/resilience"
	"github.com/sagebase/sagebase/internal/store"
)

// ReasonManuallyVerified is reported when an update was skipped because the
// entity is protected.
const ReasonManuallyVerified = "manually_verified"

// ErrNotFound is returned when the target entity does not exist.
var ErrNotFound = eris.New("entity not found")

// UpdateError is returned when the entity could not be written after its
// extraction log was recorded. LogID names the row that was kept.
type UpdateError struct {
	EntityType model.EntityType
	EntityID   int64
	LogID      int64
	Err        error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("extraction: update %s %d (log %d kept): %v", e.EntityType, e.EntityID, e.LogID, e.Err)
}

func (e *UpdateError) Unwrap() error {
	return e.Err
}

// Result describes the outcome of one Execute call.
type Result struct {
	Applied bool   `json:"applied"`
	Reason  string `json:"reason,omitempty"`
	LogID   int64  `json:"log_id"`
}

// LogRecorder appends extraction logs.
type LogRecorder interface {
	RecordExtraction(ctx context.Context, log *model.ExtractionLog) (int64, error)
}

// Repository loads and persists one entity kind.
type Repository[E model.Verifiable] interface {
	Get(ctx context.Context, id int64) (E, error)
	Update(ctx context.Context, entity E) error
}

// RepositoryFuncs adapts a pair of store methods to Repository.
type RepositoryFuncs[E model.Verifiable] struct {
	GetFunc    func(ctx context.Context, id int64) (E, error)
	UpdateFunc func(ctx context.Context, entity E) error
}

func (r RepositoryFuncs[E]) Get(ctx context.Context, id int64) (E, error) {
	return r.GetFunc(ctx, id)
}

func (r RepositoryFuncs[E]) Update(ctx context.Context, entity E) error {
	return r.UpdateFunc(ctx, entity)
}

// Strategy supplies the per-kind parts of the use case: the entity type tag
// written to the log and the mapping of result fields onto the entity.
type Strategy[E model.Verifiable, R model.ExtractionResult] struct {
	EntityType model.EntityType
	Apply      func(entity E, result R)
}

// Updater runs the update-from-extraction use case for one entity kind.
type Updater[E model.Verifiable, R model.ExtractionResult] struct {
	logs     LogRecorder
	repo     Repository[E]
	strategy Strategy[E, R]
	retry    resilience.RetryConfig
}

// NewUpdater wires an Updater from its collaborators. The entity write is
// retried on transient storage errors with resilience.DefaultRetryConfig.
func NewUpdater[E model.Verifiable, R model.ExtractionResult](logs LogRecorder, repo Repository[E], strategy Strategy[E, R]) *Updater[E, R] {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("extraction", "update_"+string(strategy.EntityType))
	return &Updater[E, R]{logs: logs, repo: repo, strategy: strategy, retry: retry}
}

// WithRetry replaces the retry policy of the entity write.
func (u *Updater[E, R]) WithRetry(cfg resilience.RetryConfig) *Updater[E, R] {
	u.retry = cfg
	return u
}

// EntityType returns the entity kind this updater handles.
func (u *Updater[E, R]) EntityType() model.EntityType {
	return u.strategy.EntityType
}

// Execute records result in the extraction log and, unless the entity has
// been manually verified, applies it to the entity. A failure to persist the
// entity is returned but the log row is kept.
func (u *Updater[E, R]) Execute(ctx context.Context, entityID int64, result R, pipelineVersion string) (*Result, error) {
	entityType := u.strategy.EntityType
	log := zap.L().With(
		zap.String("entity_type", string(entityType)),
		zap.Int64("entity_id", entityID),
		zap.String("pipeline_version", pipelineVersion),
	)

	if model.IsNilResult(result) {
		return nil, eris.Wrapf(model.ErrNilResult, "extraction: %s %d", entityType, entityID)
	}

	entity, err := u.repo.Get(ctx, entityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, eris.Wrapf(ErrNotFound, "extraction: %s %d", entityType, entityID)
		}
		return nil, eris.Wrapf(err, "extraction: load %s %d", entityType, entityID)
	}

	entry, err := newLog(ctx, entityType, entityID, pipelineVersion, result)
	if err != nil {
		return nil, eris.Wrapf(err, "extraction: build log for %s %d", entityType, entityID)
	}
	logID, err := u.logs.RecordExtraction(ctx, entry)
	if err != nil {
		return nil, eris.Wrapf(err, "extraction: record log for %s %d", entityType, entityID)
	}

	if !entity.CanBeUpdatedByAI() {
		log.Info("skipping update of manually verified entity", zap.Int64("log_id", logID))
		return &Result{Applied: false, Reason: ReasonManuallyVerified, LogID: logID}, nil
	}

	u.strategy.Apply(entity, result)
	entity.UpdateFromExtractionLog(logID)

	// The write is a full-row replace, so repeating it is safe.
	err = resilience.Do(ctx, u.retry, func(ctx context.Context) error {
		return u.repo.Update(ctx, entity)
	})
	if err != nil {
		return nil, &UpdateError{EntityType: entityType, EntityID: entityID, LogID: logID, Err: err}
	}

	log.Debug("applied extraction", zap.Int64("log_id", logID))
	return &Result{Applied: true, LogID: logID}, nil
}

func newLog(ctx context.Context, entityType model.EntityType, entityID int64, pipelineVersion string, result model.ExtractionResult) (*model.ExtractionLog, error) {
	payload, err := result.Payload()
	if err != nil {
		return nil, err
	}
	d := detailsFromContext(ctx)
	return &model.ExtractionLog{
		EntityType:       entityType,
		EntityID:         entityID,
		PipelineVersion:  pipelineVersion,
		ExtractedData:    payload,
		ConfidenceScore:  result.Confidence(),
		Metadata:         d.metadata(),
		ModelName:        d.ModelName,
		TokenCountInput:  d.TokenCountInput,
		TokenCountOutput: d.TokenCountOutput,
		ProcessingTimeMS: d.ProcessingTimeMS,
	}, nil
}
