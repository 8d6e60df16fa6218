package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/logger"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	mu    sync.Mutex
	descs []*models.DeviceDescription
	errs  []error
	calls int
}

func (f *fakeAdapter) Describe(context.Context) (*models.DeviceDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.calls
	f.calls++

	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}

	if i >= len(f.descs) {
		i = len(f.descs) - 1
	}

	return f.descs[i], nil
}

func (f *fakeAdapter) Close() error { return nil }

func collectUpdates() (UpdateFunc, *[]models.ResourceUpdate, *sync.Mutex) {
	var (
		mu      sync.Mutex
		updates []models.ResourceUpdate
	)

	fn := func(u models.ResourceUpdate) {
		mu.Lock()
		updates = append(updates, u)
		mu.Unlock()
	}

	return fn, &updates, &mu
}

func TestRunnerEmitsOnChangeOnly(t *testing.T) {
	fn, updates, mu := collectUpdates()

	fa := &fakeAdapter{descs: []*models.DeviceDescription{
		{Name: "dec-1", Serial: "634", Reachable: true},
		{Name: "dec-1", Serial: "634", Reachable: true}, // unchanged
		{Name: "dec-1", Serial: "634", Reachable: true, Interfaces: []models.InterfaceStatus{{Index: 0, Name: "eth0", LinkUp: true}}},
	}}

	cfg := models.DeviceConfig{Name: "dec-1", Type: "fake", PollInterval: models.Duration(10 * time.Millisecond)}
	r := NewRunner(cfg, fa, fn, logger.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		_ = r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(*updates) >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()

	first := (*updates)[0].Resource
	assert.Equal(t, "adapter:dec-1", first.ID)
	assert.Equal(t, models.SourceAdapter, first.Source)
	require.NotNil(t, first.Reachable)
	assert.True(t, *first.Reachable)
}

func TestRunnerReportsUnreachableInsteadOfFailing(t *testing.T) {
	fn, updates, mu := collectUpdates()

	fa := &fakeAdapter{
		descs: []*models.DeviceDescription{{Name: "dec-1", Serial: "634", Reachable: true}},
		errs:  []error{nil, errors.New("connection refused")},
	}

	cfg := models.DeviceConfig{Name: "dec-1", Type: "fake", PollInterval: models.Duration(10 * time.Millisecond)}
	r := NewRunner(cfg, fa, fn, logger.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		_ = r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(*updates) >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()

	second := (*updates)[1].Resource
	require.NotNil(t, second.Reachable)
	assert.False(t, *second.Reachable)
	assert.Contains(t, second.LastError, "connection refused")
	assert.Equal(t, "634", second.Serial, "identity survives an unreachable poll")
}

func TestRegistryUnknownTypeDisablesSingleDevice(t *testing.T) {
	reg := NewRegistry()
	reg.Register("fake", func(models.DeviceConfig, logger.Logger) (Adapter, error) {
		return &fakeAdapter{descs: []*models.DeviceDescription{{Name: "ok", Reachable: true}}}, nil
	})

	fn, _, _ := collectUpdates()
	mgr := NewManager(reg, fn, logger.NewTestLogger())

	runners := mgr.Load([]models.DeviceConfig{
		{Name: "good", Type: "fake"},
		{Name: "bad", Type: "missing"},
	})

	assert.Len(t, runners, 1)
}

func TestTokenClientReauthenticatesOnceOn401(t *testing.T) {
	var authCalls int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
	}))
	defer srv.Close()

	tc := &TokenClient{
		HTTP: srv.Client(),
		Auth: func(context.Context) (string, error) {
			authCalls++
			if authCalls == 1 {
				return "stale", nil
			}

			return "fresh", nil
		},
	}

	resp, err := tc.Do(context.Background(), func(token string) (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
		if err != nil {
			return nil, err
		}

		req.Header.Set("Authorization", "Bearer "+token)

		return req, nil
	})
	require.NoError(t, err)

	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, authCalls, "exactly one re-authentication")
}
