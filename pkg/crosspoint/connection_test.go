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

package crosspoint

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/identity"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/logger"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/syncobj"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/topology"
)

type fakeControl struct {
	mu          sync.Mutex
	applyErr    map[string]error // keyed by receiver id
	applyCalls  map[string]int
	disconnects map[string]int
	transport   *models.TransportParams
}

func newFakeControl() *fakeControl {
	return &fakeControl{
		applyErr:    make(map[string]error),
		applyCalls:  make(map[string]int),
		disconnects: make(map[string]int),
		transport: &models.TransportParams{
			Legs: []models.ConnectionLeg{{Index: 0, MulticastIP: "239.1.1.1", Port: 5004}},
		},
	}
}

func (f *fakeControl) SenderTransport(_ context.Context, _ models.Resource) (*models.TransportParams, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := &models.TransportParams{Legs: make([]models.ConnectionLeg, len(f.transport.Legs))}
	copy(out.Legs, f.transport.Legs)

	return out, nil
}

func (f *fakeControl) ApplyReceiver(_ context.Context, receiver models.Resource, _ string, _ *models.TransportParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.applyCalls[receiver.ID]++

	return f.applyErr[receiver.ID]
}

func (f *fakeControl) DisconnectReceiver(_ context.Context, receiver models.Resource) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.disconnects[receiver.ID]++

	return nil
}

func (f *fakeControl) failReceiver(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.applyErr[id] = err
}

func (f *fakeControl) applies(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.applyCalls[id]
}

func newTestOrchestrator(t *testing.T, control ControlPlane) (*Orchestrator, *topology.Store) {
	t.Helper()

	log := logger.NewTestLogger()
	store := topology.NewStore(identity.DefaultConfig(), log)

	reg := syncobj.NewRegistry(log)
	for _, name := range []string{models.SyncTopology, models.SyncDevices, models.SyncCrosspoint, models.SyncConnectionStatus} {
		require.NoError(t, reg.Register(name, models.PermissionGlobal, nil))
	}

	overrides := NewOverrides("", log)
	cfg := Config{BackoffBase: time.Millisecond, BackoffMax: 10 * time.Millisecond}

	return New(store, reg, control, overrides, cfg, log), store
}

func addSenderReceiver(store *topology.Store, senderID, receiverID string) {
	store.Apply(models.ResourceUpdate{Kind: models.UpdateAdd, Resource: &models.Resource{
		ID:     senderID,
		Type:   models.ResourceSender,
		Source: models.SourceRegistry,
		Label:  "sender " + senderID,
	}})
	store.Apply(models.ResourceUpdate{Kind: models.UpdateAdd, Resource: &models.Resource{
		ID:     receiverID,
		Type:   models.ResourceReceiver,
		Source: models.SourceRegistry,
		Label:  "receiver " + receiverID,
	}})
}

func drainEvents(store *topology.Store) {
	for {
		select {
		case <-store.Events():
		default:
			return
		}
	}
}

func TestMakeConnectionActivates(t *testing.T) {
	control := newFakeControl()
	orch, store := newTestOrchestrator(t, control)
	addSenderReceiver(store, "s1", "r1")

	resp, err := orch.MakeConnection(context.Background(), &MakeConnectionRequest{Source: "s1", Destination: "r1"})
	require.NoError(t, err)
	require.NotNil(t, resp.Connection)

	assert.Equal(t, models.ConnectionActive, resp.Connection.State)
	assert.Equal(t, "s1", resp.Connection.SenderID)
	require.Len(t, resp.Connection.Legs, 1)
	assert.True(t, resp.Connection.Legs[0].Applied)
	assert.Equal(t, 1, control.applies("r1"))
}

func TestMakeConnectionReconnectIdempotent(t *testing.T) {
	control := newFakeControl()
	orch, store := newTestOrchestrator(t, control)
	addSenderReceiver(store, "s1", "r1")

	req := &MakeConnectionRequest{Source: "s1", Destination: "r1"}

	first, err := orch.MakeConnection(context.Background(), req)
	require.NoError(t, err)

	second, err := orch.MakeConnection(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, models.ConnectionActive, second.Connection.State)
	assert.Equal(t, first.Connection.ID, second.Connection.ID, "receiver keeps one connection record")
	assert.Equal(t, 2, control.applies("r1"), "re-apply is driven to the device each time")
}

func TestMakeConnectionDisconnect(t *testing.T) {
	control := newFakeControl()
	orch, store := newTestOrchestrator(t, control)
	addSenderReceiver(store, "s1", "r1")

	_, err := orch.MakeConnection(context.Background(), &MakeConnectionRequest{Source: "s1", Destination: "r1"})
	require.NoError(t, err)

	resp, err := orch.MakeConnection(context.Background(), &MakeConnectionRequest{Source: "", Destination: "r1"})
	require.NoError(t, err)

	assert.Equal(t, models.ConnectionIdle, resp.Connection.State)
	assert.Empty(t, resp.Connection.SenderID)
	assert.Empty(t, resp.Connection.Legs)
	assert.Equal(t, 1, control.disconnects["r1"])
}

func TestMakeConnectionUnknownEndpoints(t *testing.T) {
	control := newFakeControl()
	orch, store := newTestOrchestrator(t, control)
	addSenderReceiver(store, "s1", "r1")

	_, err := orch.MakeConnection(context.Background(), &MakeConnectionRequest{Source: "s1", Destination: "nope"})
	assert.ErrorIs(t, err, ErrUnknownReceiver)

	_, err = orch.MakeConnection(context.Background(), &MakeConnectionRequest{Source: "nope", Destination: "r1"})
	assert.ErrorIs(t, err, ErrUnknownSender)
}

func TestSenderBusyWithoutFanout(t *testing.T) {
	control := newFakeControl()
	orch, store := newTestOrchestrator(t, control)
	addSenderReceiver(store, "s1", "r1")
	addSenderReceiver(store, "s2", "r2")

	_, err := orch.MakeConnection(context.Background(), &MakeConnectionRequest{Source: "s1", Destination: "r1"})
	require.NoError(t, err)

	_, err = orch.MakeConnection(context.Background(), &MakeConnectionRequest{Source: "s1", Destination: "r2"})
	assert.ErrorIs(t, err, ErrSenderBusy)

	resp, err := orch.MakeConnection(context.Background(), &MakeConnectionRequest{Source: "s1", Destination: "r2", Fanout: true})
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionActive, resp.Connection.State)
}

func TestBatchOutcomesIndependent(t *testing.T) {
	control := newFakeControl()
	orch, store := newTestOrchestrator(t, control)
	addSenderReceiver(store, "s1", "r1")
	addSenderReceiver(store, "s2", "r2")
	addSenderReceiver(store, "s3", "r3")

	control.failReceiver("r2", errors.New("device rejected staged params"))

	resp, err := orch.MakeConnection(context.Background(), &MakeConnectionRequest{Multiple: []ConnectionPair{
		{Source: "s1", Destination: "r1"},
		{Source: "s2", Destination: "r2"},
		{Source: "s3", Destination: "r3"},
	}})
	require.NoError(t, err)
	require.Len(t, resp.Outcomes, 3)

	assert.True(t, resp.Outcomes[0].OK)
	assert.Equal(t, string(models.ConnectionActive), resp.Outcomes[0].State)
	assert.False(t, resp.Outcomes[1].OK)
	assert.Contains(t, resp.Outcomes[1].Error, "rejected")
	assert.True(t, resp.Outcomes[2].OK)
}

func TestBatchRepeatedSourceIsFanout(t *testing.T) {
	control := newFakeControl()
	orch, store := newTestOrchestrator(t, control)
	addSenderReceiver(store, "s1", "r1")
	addSenderReceiver(store, "s2", "r2")

	resp, err := orch.MakeConnection(context.Background(), &MakeConnectionRequest{Multiple: []ConnectionPair{
		{Source: "s1", Destination: "r1"},
		{Source: "s1", Destination: "r2"},
	}})
	require.NoError(t, err)

	for _, out := range resp.Outcomes {
		assert.True(t, out.OK, "repeated source in one batch means explicit fan-out: %s", out.Error)
	}
}

func TestPreviewDoesNotTouchDevice(t *testing.T) {
	control := newFakeControl()
	orch, store := newTestOrchestrator(t, control)
	addSenderReceiver(store, "s1", "r1")

	resp, err := orch.MakeConnection(context.Background(), &MakeConnectionRequest{Source: "s1", Destination: "r1", Preview: true})
	require.NoError(t, err)

	require.NotNil(t, resp.Transport)
	assert.Nil(t, resp.Connection)
	assert.Equal(t, 0, control.applies("r1"))
	assert.Equal(t, "239.1.1.1", resp.Transport.Legs[0].MulticastIP)
}

func TestPreviewDisconnectDoesNotTouchDevice(t *testing.T) {
	control := newFakeControl()
	orch, store := newTestOrchestrator(t, control)
	addSenderReceiver(store, "s1", "r1")

	_, err := orch.MakeConnection(context.Background(), &MakeConnectionRequest{Source: "s1", Destination: "r1"})
	require.NoError(t, err)

	for _, req := range []*MakeConnectionRequest{
		{Source: "", Destination: "r1", Preview: true},
		{Source: "", Destination: "r1", Prepare: true},
	} {
		resp, err := orch.MakeConnection(context.Background(), req)
		require.NoError(t, err)
		assert.Nil(t, resp.Connection)
		assert.Nil(t, resp.Transport)
	}

	assert.Equal(t, 0, control.disconnects["r1"], "preview/prepare never disconnects the device")

	conn, ok := orch.connectionFor("r1")
	require.True(t, ok)
	assert.Equal(t, models.ConnectionActive, conn.State)
}

func TestMulticastOverrideAppliedToTransport(t *testing.T) {
	control := newFakeControl()
	orch, store := newTestOrchestrator(t, control)
	addSenderReceiver(store, "s1", "r1")

	require.NoError(t, orch.SetMulticast("s1", []string{"239.9.9.9"}))

	resp, err := orch.MakeConnection(context.Background(), &MakeConnectionRequest{Source: "s1", Destination: "r1", Preview: true})
	require.NoError(t, err)

	assert.Equal(t, "239.9.9.9", resp.Transport.Legs[0].MulticastIP)
}

func TestFailedConnectionRetriedOnceOnTopologyEvent(t *testing.T) {
	control := newFakeControl()
	orch, store := newTestOrchestrator(t, control)
	addSenderReceiver(store, "s1", "r1")

	// The receiver rides on its parent device's identity group.
	store.Apply(models.ResourceUpdate{Kind: models.UpdateAdd, Resource: &models.Resource{
		ID:     "dev-r",
		Type:   models.ResourceDevice,
		Source: models.SourceRegistry,
		Serial: "DST-200",
	}})
	store.Apply(models.ResourceUpdate{Kind: models.UpdateChange, Resource: &models.Resource{
		ID:       "r1",
		Type:     models.ResourceReceiver,
		Source:   models.SourceRegistry,
		DeviceID: "dev-r",
		Label:    "receiver r1",
	}})
	drainEvents(store)

	control.failReceiver("r1", errors.New("unreachable"))

	_, err := orch.MakeConnection(context.Background(), &MakeConnectionRequest{Source: "s1", Destination: "r1"})
	require.Error(t, err)

	conn, ok := orch.connectionFor("r1")
	require.True(t, ok)
	assert.Equal(t, models.ConnectionFailed, conn.State)
	assert.Equal(t, 1, conn.Attempts)

	// Device comes back; a topology change to the receiver's group triggers
	// exactly one new attempt.
	control.failReceiver("r1", nil)
	time.Sleep(5 * time.Millisecond) // past the 1ms test backoff

	store.Apply(models.ResourceUpdate{Kind: models.UpdateChange, Resource: &models.Resource{
		ID:       "r1",
		Type:     models.ResourceReceiver,
		Source:   models.SourceRegistry,
		DeviceID: "dev-r",
		Label:    "receiver r1 back",
	}})

	gid, ok := store.GroupOf("dev-r")
	require.True(t, ok)
	orch.maybeRetry(context.Background(), gid)

	conn, ok = orch.connectionFor("r1")
	require.True(t, ok)
	assert.Equal(t, models.ConnectionActive, conn.State)
	assert.Equal(t, 0, conn.Attempts)
	assert.Equal(t, 2, control.applies("r1"))

	// A second event for the same group must not re-apply an active connection.
	orch.maybeRetry(context.Background(), gid)
	assert.Equal(t, 2, control.applies("r1"))
}

func TestRetryWaitsForBackoffDeadline(t *testing.T) {
	control := newFakeControl()
	orch, store := newTestOrchestrator(t, control)
	orch.backoffBase = time.Hour
	addSenderReceiver(store, "s1", "r1")
	store.Apply(models.ResourceUpdate{Kind: models.UpdateAdd, Resource: &models.Resource{
		ID:     "dev-r",
		Type:   models.ResourceDevice,
		Source: models.SourceRegistry,
		Serial: "DST-300",
	}})
	store.Apply(models.ResourceUpdate{Kind: models.UpdateChange, Resource: &models.Resource{
		ID:       "r1",
		Type:     models.ResourceReceiver,
		Source:   models.SourceRegistry,
		DeviceID: "dev-r",
		Label:    "receiver r1",
	}})

	control.failReceiver("r1", errors.New("unreachable"))

	_, err := orch.MakeConnection(context.Background(), &MakeConnectionRequest{Source: "s1", Destination: "r1"})
	require.Error(t, err)

	gid, ok := store.GroupOf("dev-r")
	require.True(t, ok)
	orch.maybeRetry(context.Background(), gid)

	assert.Equal(t, 1, control.applies("r1"), "retry before the backoff deadline must be skipped")
}

func TestBackoffCapped(t *testing.T) {
	orch := &Orchestrator{backoffBase: time.Second, backoffMax: 8 * time.Second}

	assert.Equal(t, time.Second, orch.backoff(1))
	assert.Equal(t, 2*time.Second, orch.backoff(2))
	assert.Equal(t, 4*time.Second, orch.backoff(3))
	assert.Equal(t, 8*time.Second, orch.backoff(4))
	assert.Equal(t, 8*time.Second, orch.backoff(10))
}
