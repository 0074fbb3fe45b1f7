package repo

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/entity"
)

var accountCols = []string{
	"id", "role", "visible", "email", "name", "photo_url", "bio", "nationality",
	"starters", "interests", "instagram", "linkedin", "whatsapp",
	"unlocked_targets", "unlock_count", "last_unlocked_at", "created_at", "updated_at",
}

func setupMockStore(t *testing.T) (sqlmock.Sqlmock, *PostgresStore) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return mock, NewPostgresStore(sqlx.NewDb(db, "postgres"))
}

func TestPostgresGet_Success(t *testing.T) {
	mock, store := setupMockStore(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(accountCols).
		AddRow("h1", "host", true, "h1@example.com", "Ana", "", "Erasmus buddy", "PT",
			"{\"Ask me about Porto\"}", "{hiking,jazz}", "ana.ig", "", "",
			"{}", int64(4), nil, now, now)
	mock.ExpectQuery(`SELECT id, role`).WithArgs("h1").WillReturnRows(rows)

	a, err := store.Get(context.Background(), "h1")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleHost, a.Role)
	assert.Equal(t, "Ana", a.Profile.Name)
	assert.Equal(t, []string{"Ask me about Porto"}, a.Profile.Starters)
	assert.Equal(t, []string{"hiking", "jazz"}, a.Profile.Interests)
	assert.Equal(t, "ana.ig", a.Profile.Socials.Instagram)
	assert.Equal(t, int64(4), a.UnlockCount)
	assert.NotNil(t, a.UnlockedTargets)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGet_NotFound(t *testing.T) {
	mock, store := setupMockStore(t)
	mock.ExpectQuery(`SELECT id, role`).WithArgs("missing").WillReturnRows(sqlmock.NewRows(accountCols))

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGet_DriverErrorIsUnavailable(t *testing.T) {
	mock, store := setupMockStore(t)
	mock.ExpectQuery(`SELECT id, role`).WithArgs("h1").WillReturnError(assert.AnError)

	_, err := store.Get(context.Background(), "h1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestPostgresCreate_Conflict(t *testing.T) {
	mock, store := setupMockStore(t)
	mock.ExpectExec(`INSERT INTO accounts`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Create(context.Background(), entity.NewAccount("p1", entity.RoleParticipant, "", time.Now()))
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresConditionalAppend_Appended(t *testing.T) {
	mock, store := setupMockStore(t)
	mock.ExpectQuery(`UPDATE accounts SET unlocked_targets`).
		WithArgs("p1", "h1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(int64(1)))

	res, err := store.ConditionalAppend(context.Background(), "p1", "h1")
	require.NoError(t, err)
	assert.Equal(t, Appended, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresConditionalAppend_AlreadyPresent(t *testing.T) {
	mock, store := setupMockStore(t)
	mock.ExpectQuery(`UPDATE accounts SET unlocked_targets`).
		WithArgs("p1", "h1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	res, err := store.ConditionalAppend(context.Background(), "p1", "h1")
	require.NoError(t, err)
	assert.Equal(t, AlreadyPresent, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresConditionalAppend_MissingViewer(t *testing.T) {
	mock, store := setupMockStore(t)
	mock.ExpectQuery(`UPDATE accounts SET unlocked_targets`).
		WithArgs("ghost", "h1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := store.ConditionalAppend(context.Background(), "ghost", "h1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresIncrementUnlockCount(t *testing.T) {
	mock, store := setupMockStore(t)
	mock.ExpectExec(`UPDATE accounts SET unlock_count = unlock_count \+ 1`).
		WithArgs("h1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE accounts SET unlock_count = unlock_count \+ 1`).
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.IncrementUnlockCount(context.Background(), "h1"))
	assert.ErrorIs(t, store.IncrementUnlockCount(context.Background(), "gone"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetMerge_OnlyPatchedFields(t *testing.T) {
	mock, store := setupMockStore(t)
	name := "Ana"
	hidden := false
	mock.ExpectExec(`UPDATE accounts SET`).
		WithArgs("h1", nil, false, nil, "Ana", nil, nil, nil, nil, nil, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.SetMerge(context.Background(), "h1", entity.AccountPatch{Name: &name, Visible: &hidden})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDelete_NotFound(t *testing.T) {
	mock, store := setupMockStore(t)
	mock.ExpectExec(`DELETE FROM accounts`).WithArgs("h1").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, store.Delete(context.Background(), "h1"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQuery_StreamsByRole(t *testing.T) {
	mock, store := setupMockStore(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows(accountCols).
		AddRow("h1", "host", true, "", "Ana", "", "", "", "{}", "{}", "", "", "", "{}", int64(0), nil, now, now).
		AddRow("h2", "host", false, "", "Rui", "", "", "", "{}", "{}", "", "", "", "{}", int64(2), nil, now, now)
	mock.ExpectQuery(`FROM accounts WHERE role=\$1`).WithArgs("host").WillReturnRows(rows)

	var ids []string
	for a, err := range store.Query(context.Background(), ByRole(entity.RoleHost)) {
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"h1", "h2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildQuery(t *testing.T) {
	q, args := buildQuery(Filter{})
	assert.NotContains(t, q, "WHERE")
	assert.Empty(t, args)

	visible := true
	role := entity.RoleHost
	q, args = buildQuery(Filter{Role: &role, Visible: &visible})
	assert.Contains(t, q, "WHERE role=$1 AND visible=$2")
	assert.Equal(t, []any{"host", true}, args)
}
