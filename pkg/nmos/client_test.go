/*
 * Copyright 2026 Avassdal Media Systems.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package nmos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/logger"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
)

// fakeRegistry serves the query API collections from an in-memory table.
type fakeRegistry struct {
	mu          sync.Mutex
	collections map[string][]map[string]interface{}
}

func (f *fakeRegistry) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/subscriptions") {
			w.WriteHeader(http.StatusNotImplemented)
			return
		}

		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		name := parts[len(parts)-1]

		f.mu.Lock()
		col, ok := f.collections[name]
		f.mu.Unlock()

		if !ok {
			col = []map[string]interface{}{}
		}

		_ = json.NewEncoder(w).Encode(col)
	})
}

func (f *fakeRegistry) set(name string, col []map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.collections[name] = col
}

type updateRecorder struct {
	mu      sync.Mutex
	updates []models.ResourceUpdate
}

func (u *updateRecorder) record(up models.ResourceUpdate) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.updates = append(u.updates, up)
}

func (u *updateRecorder) byID(id string) []models.ResourceUpdate {
	u.mu.Lock()
	defer u.mu.Unlock()

	var out []models.ResourceUpdate

	for _, up := range u.updates {
		if up.Resource != nil && up.Resource.ID == id {
			out = append(out, up)
		}
	}

	return out
}

func TestResyncEmitsAllCollections(t *testing.T) {
	registry := &fakeRegistry{collections: map[string][]map[string]interface{}{
		"nodes":   {{"id": "node-1", "label": "Node 1"}},
		"devices": {{"id": "dev-1", "label": "Dev 1", "node_id": "node-1"}},
		"senders": {{"id": "snd-1", "label": "Out 1", "device_id": "dev-1"}},
	}}

	srv := httptest.NewServer(registry.handler())
	defer srv.Close()

	rec := &updateRecorder{}
	c := NewRegistryClient(models.RegistryConfig{ID: "main", QueryAPI: srv.URL}, rec.record, nil, logger.NewTestLogger())

	require.NoError(t, c.resync(context.Background()))

	assert.Len(t, rec.byID("node-1"), 1)
	assert.Len(t, rec.byID("dev-1"), 1)
	assert.Len(t, rec.byID("snd-1"), 1)
	assert.Equal(t, models.ResourceSender, rec.byID("snd-1")[0].Resource.Type)
}

func TestResyncEmitsRemovesForVanishedResources(t *testing.T) {
	registry := &fakeRegistry{collections: map[string][]map[string]interface{}{
		"devices": {{"id": "dev-1", "label": "Dev 1"}},
	}}

	srv := httptest.NewServer(registry.handler())
	defer srv.Close()

	rec := &updateRecorder{}
	c := NewRegistryClient(models.RegistryConfig{ID: "main", QueryAPI: srv.URL}, rec.record, nil, logger.NewTestLogger())

	require.NoError(t, c.resync(context.Background()))
	require.Len(t, rec.byID("dev-1"), 1)

	registry.set("devices", nil)
	require.NoError(t, c.resync(context.Background()))

	updates := rec.byID("dev-1")
	require.Len(t, updates, 2)
	assert.Equal(t, models.UpdateRemove, updates[1].Kind)
	assert.Equal(t, models.ResourceDevice, updates[1].Resource.Type)
}

func TestSessionFallsBackToPollingWhenSubscriptionRejected(t *testing.T) {
	registry := &fakeRegistry{collections: map[string][]map[string]interface{}{}}

	srv := httptest.NewServer(registry.handler())
	defer srv.Close()

	var statuses []models.RegistryStatus

	c := NewRegistryClient(
		models.RegistryConfig{ID: "main", QueryAPI: srv.URL, PollInterval: models.Duration(1)},
		func(models.ResourceUpdate) {},
		func(st models.RegistryStatus) { statuses = append(statuses, st) },
		logger.NewTestLogger(),
	)

	_, err := c.createSubscription(context.Background())
	assert.ErrorIs(t, err, errSubscriptionRejected)

	// A full session still reports connected after the initial resync, then
	// polls until the context ends.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_ = c.session(ctx)
	require.NotEmpty(t, statuses)
	assert.True(t, statuses[0].Connected)
}

func TestFetchCollectionRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewRegistryClient(models.RegistryConfig{ID: "main", QueryAPI: srv.URL}, func(models.ResourceUpdate) {}, nil, logger.NewTestLogger())

	_, err := c.fetchCollection(context.Background(), "devices")
	assert.ErrorIs(t, err, errUnexpectedStatus)
}
