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

// Package crosspoint reconciles the merged topology into the operator-facing
// crosspoint model and drives connection changes against devices.
package crosspoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/logger"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/syncobj"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/topology"
)

var (
	// ErrUnknownResource is returned by override operations on unknown ids.
	ErrUnknownResource = errors.New("unknown resource")
	// ErrUnknownFlow is returned by flowInfo for an id that is not a flow.
	ErrUnknownFlow = errors.New("unknown flow")
	// ErrUnknownDevice is returned when a device identity resolves to nothing.
	ErrUnknownDevice = errors.New("unknown device")
)

// Config tunes the orchestrator's retry behavior.
type Config struct {
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Orchestrator consumes topology store changes, derives the crosspoint
// model, and executes connection commands through the control plane.
type Orchestrator struct {
	store     *topology.Store
	sync      *syncobj.Registry
	control   ControlPlane
	overrides *Overrides
	logger    logger.Logger

	backoffBase time.Duration
	backoffMax  time.Duration

	connMu sync.Mutex
	conns  map[string]*connState
}

// New wires the orchestrator. The sync registry must already hold the
// crosspoint, topology, devices, and connectionstatus objects.
func New(store *topology.Store, syncReg *syncobj.Registry, control ControlPlane, overrides *Overrides, cfg Config, log logger.Logger) *Orchestrator {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}

	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 2 * time.Minute
	}

	return &Orchestrator{
		store:       store,
		sync:        syncReg,
		control:     control,
		overrides:   overrides,
		logger:      log.WithComponent("crosspoint"),
		backoffBase: cfg.BackoffBase,
		backoffMax:  cfg.BackoffMax,
		conns:       make(map[string]*connState),
	}
}

// Run drains topology events until ctx is cancelled: every event re-projects
// the derived sync objects and gates retries of failed connections touching
// the changed device group.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.publishAll()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-o.store.Events():
			if !ok {
				return nil
			}

			o.publishAll()
			o.maybeRetry(ctx, ev.GroupID)
		}
	}
}

func (o *Orchestrator) publishAll() {
	o.publishTopology()
	o.publishDevices()
	o.publishCrosspoint()
}

func (o *Orchestrator) publishTopology() {
	state := o.projectTopology()
	o.publish(models.SyncTopology, state)
}

func (o *Orchestrator) publishDevices() {
	state := o.projectDevices()
	o.publish(models.SyncDevices, state)
}

func (o *Orchestrator) publishCrosspoint() {
	state := o.project()
	o.publish(models.SyncCrosspoint, state)
}

func (o *Orchestrator) publishConnections() {
	o.connMu.Lock()

	state := make(map[string]models.Connection, len(o.conns))
	for rid, cs := range o.conns {
		state[rid] = cs.conn
	}

	o.connMu.Unlock()

	o.publish(models.SyncConnectionStatus, state)
}

func (o *Orchestrator) publish(name string, state interface{}) {
	if err := o.sync.Publish(name, func(interface{}) interface{} { return state }); err != nil {
		o.logger.Error().Err(err).Str("object", name).Msg("Sync publish failed")
	}
}

// FlowInfo returns the merged detail for one flow id: the flow record, its
// sender, and the sender's current transport descriptor when reachable.
func (o *Orchestrator) FlowInfo(ctx context.Context, flowID string) (map[string]interface{}, error) {
	flow, ok := o.store.Get(flowID)
	if !ok || flow.Type != models.ResourceFlow {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFlow, flowID)
	}

	flow.Raw = nil
	info := map[string]interface{}{"flow": flow}

	for _, res := range o.store.Snapshot() {
		if res.Type == models.ResourceSender && res.FlowID == flowID {
			res.Raw = nil
			info["sender"] = res

			if transport, err := o.senderTransport(ctx, res); err == nil {
				info["transport"] = transport
			}

			break
		}
	}

	return info, nil
}

// ChangeAlias stores a display alias override and re-projects.
func (o *Orchestrator) ChangeAlias(id, alias string) error {
	if err := o.requireResource(id); err != nil {
		return err
	}

	o.overrides.SetAlias(id, alias)
	o.publishCrosspoint()

	return nil
}

// SetFlowEnabled is the idempotent enableFlow/disableFlow operation.
func (o *Orchestrator) SetFlowEnabled(id string, enabled bool) error {
	if err := o.requireResource(id); err != nil {
		return err
	}

	o.overrides.SetEnabled(id, enabled)
	o.publishCrosspoint()

	return nil
}

// SetMulticast stores the per-leg multicast assignment for a sender.
func (o *Orchestrator) SetMulticast(id string, addrs []string) error {
	if err := o.requireResource(id); err != nil {
		return err
	}

	o.overrides.SetMulticast(id, addrs)
	o.publishCrosspoint()

	return nil
}

// ToggleHidden flips a resource's hidden flag and re-projects.
func (o *Orchestrator) ToggleHidden(id string) (bool, error) {
	if err := o.requireResource(id); err != nil {
		return false, err
	}

	hidden := o.overrides.ToggleHidden(id)
	o.publishCrosspoint()

	return hidden, nil
}

// ResolveAdapterDevice maps a serial number, declared name, or alias to the
// managing adapter's name for device-specific control routes.
func (o *Orchestrator) ResolveAdapterDevice(identityValue string) (string, error) {
	gid, ok := o.store.FindGroupByIdentity(identityValue)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownDevice, identityValue)
	}

	for _, res := range o.store.GroupMembers(gid) {
		if res.Source == models.SourceAdapter {
			return res.Origin, nil
		}
	}

	return "", fmt.Errorf("%w: %s is not adapter-managed", ErrUnknownDevice, identityValue)
}

func (o *Orchestrator) requireResource(id string) error {
	if _, ok := o.store.Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownResource, id)
	}

	return nil
}
