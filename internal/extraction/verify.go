package extraction

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sagebase/sagebase/internal/model"
	"github.com/sagebase/sagebase/internal/resilience"
	"github.com/sagebase/sagebase/internal/store"
)

// VerificationStore flips the manual verification flag of an entity.
type VerificationStore interface {
	SetVerified(ctx context.Context, entityType model.EntityType, id int64, verified bool) error
}

// Verifier is the human action that protects or releases an entity.
type Verifier struct {
	entities VerificationStore
	retry    resilience.RetryConfig
}

// NewVerifier returns a Verifier over s. Transient storage errors are retried.
func NewVerifier(s VerificationStore) *Verifier {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("extraction", "set_verified")
	return &Verifier{entities: s, retry: retry}
}

// WithRetry replaces the retry policy.
func (v *Verifier) WithRetry(cfg resilience.RetryConfig) *Verifier {
	v.retry = cfg
	return v
}

// SetVerified marks the entity as manually verified, or clears the mark when
// verified is false.
func (v *Verifier) SetVerified(ctx context.Context, entityType model.EntityType, id int64, verified bool) error {
	if !entityType.Valid() {
		return eris.Errorf("extraction: unknown entity type %q", entityType)
	}
	err := resilience.Do(ctx, v.retry, func(ctx context.Context) error {
		return v.entities.SetVerified(ctx, entityType, id, verified)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return eris.Wrapf(ErrNotFound, "extraction: %s %d", entityType, id)
		}
		return eris.Wrapf(err, "extraction: set verified on %s %d", entityType, id)
	}
	zap.L().Info("verification changed",
		zap.String("entity_type", string(entityType)),
		zap.Int64("entity_id", id),
		zap.Bool("verified", verified),
	)
	return nil
}
