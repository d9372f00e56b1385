package settings

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/aristath/divvy/internal/domain"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := sql.Open("sqlite", "file::memory:")
	require.NoError(t, err)
	// A single connection keeps all statements on the same in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(db, zerolog.Nop())
	require.NoError(t, repo.Migrate())
	return repo
}

func TestRepositoryGetSetRoundTrip(t *testing.T) {
	repo := newTestRepo(t)

	v, err := repo.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, repo.Set("mode", "live"))
	require.NoError(t, repo.Set("mode", "demo")) // overwrite

	v, err = repo.Get("mode")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "demo", *v)
}

func TestServiceCurrentDefaults(t *testing.T) {
	svc := NewService(newTestRepo(t), "env-key", "live", zerolog.Nop())

	current, err := svc.Current()
	require.NoError(t, err)

	assert.Equal(t, domain.ModeLive, current.Mode)
	assert.Equal(t, "env-key", current.APIKey)
	assert.Equal(t, DefaultBaseCurrency, current.BaseCurrency)
	assert.Equal(t, DefaultRefreshInterval, current.RefreshInterval)
}

func TestServiceStoredSettingsWinOverEnv(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewService(repo, "env-key", "live", zerolog.Nop())

	require.NoError(t, svc.Update("demo", "stored-key", "EUR", 15))

	current, err := svc.Current()
	require.NoError(t, err)

	assert.Equal(t, domain.ModeDemo, current.Mode)
	assert.Equal(t, "stored-key", current.APIKey)
	assert.Equal(t, "EUR", current.BaseCurrency)
	assert.Equal(t, 15*time.Minute, current.RefreshInterval)
}

func TestServiceUpdateEmptyAPIKeyKeepsStored(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewService(repo, "", "demo", zerolog.Nop())

	require.NoError(t, svc.Update("demo", "secret", "", 0))
	require.NoError(t, svc.Update("live", "", "", 0))

	current, err := svc.Current()
	require.NoError(t, err)
	assert.Equal(t, domain.ModeLive, current.Mode)
	assert.Equal(t, "secret", current.APIKey)
}

func TestServiceIgnoresInvalidInterval(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Set(KeyRefreshInterval, "not-a-number"))
	svc := NewService(repo, "", "demo", zerolog.Nop())

	current, err := svc.Current()
	require.NoError(t, err)
	assert.Equal(t, DefaultRefreshInterval, current.RefreshInterval)
}
