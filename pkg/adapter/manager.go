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

package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/logger"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
)

var errDeviceNotManaged = errors.New("device is not adapter-managed")

// Manager constructs adapters from configuration and runs one Runner per
// device. A constructor failure disables that single device; the rest keep
// running.
type Manager struct {
	registry *Registry
	updates  UpdateFunc
	logger   logger.Logger

	mu      sync.RWMutex
	runners map[string]*Runner
	byName  map[string]Adapter
}

// NewManager creates a manager over the given constructor registry.
func NewManager(registry *Registry, updates UpdateFunc, log logger.Logger) *Manager {
	return &Manager{
		registry: registry,
		updates:  updates,
		logger:   log.WithComponent("adapter-manager"),
		runners:  make(map[string]*Runner),
		byName:   make(map[string]Adapter),
	}
}

// Load constructs adapters for every configured device. Returns the runners
// to supervise; construction failures are logged and skipped.
func (m *Manager) Load(devices []models.DeviceConfig) []*Runner {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Runner, 0, len(devices))

	for _, cfg := range devices {
		a, err := m.registry.New(cfg, m.logger)
		if err != nil {
			m.logger.Error().
				Err(err).
				Str("device", cfg.Name).
				Str("type", cfg.Type).
				Msg("Disabling device, adapter construction failed")

			continue
		}

		runner := NewRunner(cfg, a, m.updates, m.logger)
		m.runners[cfg.Name] = runner
		m.byName[cfg.Name] = a
		out = append(out, runner)
	}

	return out
}

// Control forwards a device-specific action to the named adapter.
func (m *Manager) Control(ctx context.Context, name, action string, params json.RawMessage) error {
	m.mu.RLock()
	a, ok := m.byName[name]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", errDeviceNotManaged, name)
	}

	ctrl, ok := a.(Controller)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedAction, action)
	}

	return ctrl.Control(ctx, action, params)
}
