package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"safeindustech-ingest/internal/evaluator"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func setupZoneRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *ZoneRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewZoneRepository(db, logger)

	return db, mock, repo
}

func TestResolveZone_Success(t *testing.T) {
	db, mock, repo := setupZoneRepo(t)
	defer db.Close()

	datastreamID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	zoneID := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	rows := sqlmock.NewRows([]string{"id", "name"}).
		AddRow(zoneID.String(), "Zone Z1")

	mock.ExpectQuery(`SELECT z.id, z.name`).
		WithArgs(datastreamID).
		WillReturnRows(rows)

	ref, err := repo.ResolveZone(context.Background(), datastreamID)

	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, zoneID, ref.ID)
	assert.Equal(t, "Zone Z1", ref.Name)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveZone_NotFound(t *testing.T) {
	db, mock, repo := setupZoneRepo(t)
	defer db.Close()

	datastreamID := uuid.New()

	mock.ExpectQuery(`SELECT z.id, z.name`).
		WithArgs(datastreamID).
		WillReturnError(sql.ErrNoRows)

	// 未绑定区域是合法状态，不是错误
	ref, err := repo.ResolveZone(context.Background(), datastreamID)

	require.NoError(t, err)
	assert.Nil(t, ref)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeProperties_SetAlert(t *testing.T) {
	db, mock, repo := setupZoneRepo(t)
	defer db.Close()

	zoneID := uuid.New()
	observedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	delta := evaluator.Delta{Kind: evaluator.SetAlert, Value: 85}

	mock.ExpectExec(`UPDATE zone`).
		WithArgs(zoneID, 85.0, evaluator.AlertMessage, observedAt.Format(time.RFC3339Nano)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := repo.MergeProperties(context.Background(), zoneID, delta, observedAt)

	require.NoError(t, err)
	assert.True(t, applied)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeProperties_ClearAlert(t *testing.T) {
	db, mock, repo := setupZoneRepo(t)
	defer db.Close()

	zoneID := uuid.New()
	observedAt := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	delta := evaluator.Delta{Kind: evaluator.ClearAlert, Value: 60}

	mock.ExpectExec(`UPDATE zone`).
		WithArgs(zoneID, 60.0, observedAt.Format(time.RFC3339Nano)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := repo.MergeProperties(context.Background(), zoneID, delta, observedAt)

	require.NoError(t, err)
	assert.True(t, applied)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeProperties_LogsAppliedMerge(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewZoneRepository(db, zap.New(core))

	zoneID := uuid.New()
	mock.ExpectExec(`UPDATE zone`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := repo.MergeProperties(context.Background(), zoneID,
		evaluator.Delta{Kind: evaluator.SetAlert, Value: 85}, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, applied)

	entries := logs.FilterMessage("Zone properties merged").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zoneID.String(), entries[0].ContextMap()["zone_id"])
}

func TestMergeProperties_Unchanged(t *testing.T) {
	db, mock, repo := setupZoneRepo(t)
	defer db.Close()

	applied, err := repo.MergeProperties(context.Background(), uuid.New(), evaluator.Delta{Kind: evaluator.Unchanged}, time.Now())

	require.NoError(t, err)
	assert.False(t, applied)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeProperties_StaleReading(t *testing.T) {
	db, mock, repo := setupZoneRepo(t)
	defer db.Close()

	zoneID := uuid.New()
	observedAt := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	delta := evaluator.Delta{Kind: evaluator.SetAlert, Value: 85}

	// 时序门控拦截：0行受影响，但区域存在
	mock.ExpectExec(`UPDATE zone`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(zoneID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	applied, err := repo.MergeProperties(context.Background(), zoneID, delta, observedAt)

	require.NoError(t, err)
	assert.False(t, applied)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeProperties_ZoneDeleted(t *testing.T) {
	db, mock, repo := setupZoneRepo(t)
	defer db.Close()

	zoneID := uuid.New()
	delta := evaluator.Delta{Kind: evaluator.ClearAlert, Value: 60}

	mock.ExpectExec(`UPDATE zone`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(zoneID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	applied, err := repo.MergeProperties(context.Background(), zoneID, delta, time.Now().UTC())

	assert.False(t, applied)
	assert.ErrorIs(t, err, ErrZoneNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}
