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

package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/adapter"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/crosspoint"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/dispatch"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/identity"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/logger"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/syncobj"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/topology"
)

type noopControl struct{}

func (noopControl) SenderTransport(context.Context, models.Resource) (*models.TransportParams, error) {
	return &models.TransportParams{}, nil
}

func (noopControl) ApplyReceiver(context.Context, models.Resource, string, *models.TransportParams) error {
	return nil
}

func (noopControl) DisconnectReceiver(context.Context, models.Resource) error { return nil }

func newRouteRig(t *testing.T) (*dispatch.Dispatcher, *topology.Store, *crosspoint.Overrides) {
	t.Helper()

	log := logger.NewTestLogger()
	store := topology.NewStore(identity.DefaultConfig(), log)

	reg := syncobj.NewRegistry(log)
	for _, name := range []string{models.SyncTopology, models.SyncDevices, models.SyncCrosspoint, models.SyncConnectionStatus} {
		require.NoError(t, reg.Register(name, models.PermissionGlobal, nil))
	}

	overrides := crosspoint.NewOverrides("", log)
	orch := crosspoint.New(store, reg, noopControl{}, overrides,
		crosspoint.Config{BackoffBase: time.Millisecond, BackoffMax: time.Millisecond}, log)

	manager := adapter.NewManager(adapter.NewRegistry(), store.Apply, log)

	disp := dispatch.NewDispatcher(log)
	registerRoutes(disp, orch, manager)

	return disp, store, overrides
}

func dispatchAs(t *testing.T, disp *dispatch.Dispatcher, method, route, payload string) models.ResponseMessage {
	t.Helper()

	return disp.Dispatch(context.Background(),
		dispatch.Caller{User: "ops", Permission: models.PermissionGlobal},
		&models.Envelope{
			Type:   models.MsgRequest,
			ID:     "1",
			Method: method,
			Route:  route,
			Data:   json.RawMessage(payload),
		})
}

func TestSetMulticastAcceptsDataField(t *testing.T) {
	disp, store, overrides := newRouteRig(t)

	store.Apply(models.ResourceUpdate{Kind: models.UpdateAdd, Resource: &models.Resource{
		ID:     "s1",
		Type:   models.ResourceSender,
		Source: models.SourceRegistry,
	}})

	resp := dispatchAs(t, disp, "POST", "setMulticast", `{"id":"s1","data":["239.4.4.4"]}`)
	require.Empty(t, resp.Message)

	ov, ok := overrides.Get("s1")
	require.True(t, ok)
	assert.Equal(t, []string{"239.4.4.4"}, ov.Multicast)

	// The pre-"data" payload shape stays accepted.
	resp = dispatchAs(t, disp, "POST", "setMulticast", `{"id":"s1","multicast":["239.5.5.5"]}`)
	require.Empty(t, resp.Message)

	ov, ok = overrides.Get("s1")
	require.True(t, ok)
	assert.Equal(t, []string{"239.5.5.5"}, ov.Multicast)
}

func TestRoutesRejectMalformedPayload(t *testing.T) {
	disp, _, _ := newRouteRig(t)

	resp := dispatchAs(t, disp, "POST", "setMulticast", `{"id":`)
	assert.Contains(t, resp.Message, "bad request")
}
