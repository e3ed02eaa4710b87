package command

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/city-search/internal/adapter/suggestapi"
	"github.com/couchcryptid/city-search/internal/config"
	"github.com/couchcryptid/city-search/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		envFile = ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSuggestCommand(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"cities":[{"id":6077243,"name":"Montréal","ascii":"Montreal","country":"CA"}]}`))
	}))
	defer srv.Close()
	t.Setenv("SUGGEST_API_URL", srv.URL)

	out, err := runCLI(t, "suggest", "Mont", "--latitude", "45.5", "--longitude", "-73.6")
	require.NoError(t, err)

	assert.Equal(t, "q=mont&latitude=45.5&longitude=-73.6&page=0", gotQuery)
	assert.Equal(t, "6077243\tMontreal\tMontréal\tCA\n", out)
}

func TestSuggestCommand_RequiresQuery(t *testing.T) {
	_, err := runCLI(t, "suggest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestEnvFile(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = w.Write([]byte(`{"cities":[]}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SUGGEST_API_URL="+srv.URL+"\n"), 0o600))
	t.Setenv("SUGGEST_API_URL", "")
	require.NoError(t, os.Unsetenv("SUGGEST_API_URL"))

	out, err := runCLI(t, "--env-file", path, "suggest", "zzz")
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
	assert.Contains(t, out, "no suggestions")
	require.NoError(t, os.Unsetenv("SUGGEST_API_URL"))
}

func TestEnvFile_Missing(t *testing.T) {
	_, err := runCLI(t, "--env-file", filepath.Join(t.TempDir(), "missing.env"), "suggest", "mont")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load env file")
}

type stubCheck struct{ err error }

func (s stubCheck) CheckReadiness(context.Context) error { return s.err }

func TestReadiness(t *testing.T) {
	assert.NoError(t, readiness{}.CheckReadiness(t.Context()))
	assert.NoError(t, readiness{stubCheck{}, stubCheck{}}.CheckReadiness(t.Context()))

	down := errors.New("redis down")
	assert.ErrorIs(t, readiness{stubCheck{}, stubCheck{err: down}}.CheckReadiness(t.Context()), down)
}

func TestWithCache(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	inner := suggestapi.NewClient("http://127.0.0.1:1", time.Second, metrics, logger)

	source, ready, closeFn := withCache(&config.Config{SuggestCache: config.CacheNone}, inner, metrics, logger)
	closeFn()
	assert.Same(t, inner, source)
	assert.Nil(t, ready)

	source, ready, closeFn = withCache(&config.Config{SuggestCache: config.CacheMemory, SuggestCacheSize: 10}, inner, metrics, logger)
	closeFn()
	assert.IsType(t, &suggestapi.CachedSource{}, source)
	assert.Nil(t, ready)

	source, ready, closeFn = withCache(&config.Config{SuggestCache: config.CacheRedis, RedisAddr: "127.0.0.1:1", RedisTTL: time.Minute}, inner, metrics, logger)
	defer closeFn()
	assert.IsType(t, &suggestapi.CachedSource{}, source)
	assert.NotNil(t, ready)
}
