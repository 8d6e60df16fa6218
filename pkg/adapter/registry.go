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
	"fmt"
	"sync"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/logger"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
)

// Registry maps declared adapter type strings to constructors. Populated at
// startup; resolving an unregistered type disables only that device.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry creates an empty constructor registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register binds a type string to a constructor.
func (r *Registry) Register(typeName string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.constructors[typeName] = ctor
}

// New constructs an adapter for the given device config.
func (r *Registry) New(cfg models.DeviceConfig, log logger.Logger) (Adapter, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[cfg.Type]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, cfg.Type)
	}

	return ctor(cfg, log)
}
