package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagebase/sagebase/internal/model"
	"github.com/sagebase/sagebase/internal/resilience"
)

func TestStorageErr_MarksTransientCauses(t *testing.T) {
	tests := []struct {
		name      string
		cause     error
		transient bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"syntax", errors.New("SQL logic error: near \"SELEC\""), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storageErr("postgres: insert extraction log", tt.cause)

			var se *StorageError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, "postgres: insert extraction log", se.Op)
			assert.ErrorIs(t, err, tt.cause)

			var te *resilience.TransientError
			assert.Equal(t, tt.transient, errors.As(err, &te))
			assert.Equal(t, tt.transient, resilience.IsTransient(err))
		})
	}

	assert.NoError(t, storageErr("noop", nil))
}

func TestPostgresStore_SetVerified_SerializationFailureIsTransient(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE speakers SET is_manually_verified = \$1 WHERE id = \$2`).
		WithArgs(true, int64(8)).
		WillReturnError(&pgconn.PgError{Code: "40001", Message: "could not serialize access"})

	err := s.SetVerified(context.Background(), model.EntityTypeSpeaker, 8, true)
	require.Error(t, err)

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.True(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "could not serialize access")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordExtraction_ConstraintErrorIsPermanent(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO extraction_logs`).
		WithArgs(anyArgs(12)...).
		WillReturnError(&pgconn.PgError{Code: "23514", Message: "violates check constraint"})

	_, err := s.RecordExtraction(context.Background(), &model.ExtractionLog{
		EntityType: model.EntityTypeSpeaker, EntityID: 1, PipelineVersion: "v1",
	})
	require.Error(t, err)

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.False(t, resilience.IsTransient(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
