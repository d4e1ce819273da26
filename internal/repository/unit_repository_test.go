package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/loan-desk-api/internal/models"
)

func TestUnitRepositoryListAvailable(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUnitRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE kind = $1 AND catalog_id = ANY($2) AND availability_state = $3 AND condition = ANY($4)")).
		WithArgs("BOOK_COPY", sqlmock.AnyArg(), "AVAILABLE", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(unitRowColumns).
			AddRow("unit-1", "BOOK_COPY", "book-1", "B-1", "Rayuela", "AVAILABLE", "FUNCTIONAL").
			AddRow("unit-2", "BOOK_COPY", "book-1", "B-2", "Rayuela", "AVAILABLE", "OBSOLETE_USABLE"))

	units, err := repo.ListAvailable(context.Background(), models.UnitKindBookCopy, []string{"book-1"})
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "unit-1", units[0].ID)
	assert.True(t, units[1].Condition.Lendable())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitRepositoryListAvailableEmpty(t *testing.T) {
	db, _, cleanup := newMock(t)
	defer cleanup()
	repo := NewUnitRepository(db)

	units, err := repo.ListAvailable(context.Background(), models.UnitKindBookCopy, nil)
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestSanctionRepositoryHasActiveSince(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSanctionRepository(db)

	since := time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, time.February, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM sanctions")).
		WithArgs("user-1", since, now).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	active, err := repo.HasActiveSince(context.Background(), "user-1", since, now)
	require.NoError(t, err)
	assert.True(t, active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRejectionReasonRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRejectionReasonRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, body FROM rejection_reasons WHERE id = $1")).
		WithArgs("reason-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "body"}).AddRow("reason-1", "No stock", "All copies are out"))

	reason, err := repo.GetByID(context.Background(), "reason-1")
	require.NoError(t, err)
	assert.Equal(t, "No stock: All copies are out", reason.Text())
	assert.NoError(t, mock.ExpectationsWereMet())
}
