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
	"encoding/json"
	"os"
	"sync"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/logger"
)

// Override holds operator edits keyed by resource id. The crosspoint model
// is strictly derived: edits land here first and are re-applied on every
// projection.
type Override struct {
	Alias     string   `json:"alias,omitempty"`
	Hidden    *bool    `json:"hidden,omitempty"`
	Enabled   *bool    `json:"enabled,omitempty"`
	Multicast []string `json:"multicast,omitempty"`
}

func (o Override) empty() bool {
	return o.Alias == "" && o.Hidden == nil && o.Enabled == nil && len(o.Multicast) == 0
}

// Overrides is the lock-guarded override table with JSON file persistence.
// A missing or unreadable file starts empty; save failures are logged and
// the in-memory edit is kept.
type Overrides struct {
	mu     sync.RWMutex
	table  map[string]Override
	path   string
	logger logger.Logger
}

// NewOverrides loads the table from path ("" disables persistence).
func NewOverrides(path string, log logger.Logger) *Overrides {
	o := &Overrides{
		table:  make(map[string]Override),
		path:   path,
		logger: log.WithComponent("overrides"),
	}

	if path == "" {
		return o
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			o.logger.Warn().Err(err).Str("path", path).Msg("Could not read overrides file, starting empty")
		}

		return o
	}

	if err := json.Unmarshal(data, &o.table); err != nil {
		o.logger.Warn().Err(err).Str("path", path).Msg("Could not parse overrides file, starting empty")
		o.table = make(map[string]Override)
	}

	return o
}

// Get returns the override for a resource id.
func (o *Overrides) Get(id string) (Override, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ov, ok := o.table[id]

	return ov, ok
}

// SetAlias stores a display alias ("" clears it).
func (o *Overrides) SetAlias(id, alias string) {
	o.mutate(id, func(ov *Override) { ov.Alias = alias })
}

// ToggleHidden flips the hidden flag.
func (o *Overrides) ToggleHidden(id string) bool {
	var hidden bool

	o.mutate(id, func(ov *Override) {
		next := ov.Hidden == nil || !*ov.Hidden
		ov.Hidden = &next
		hidden = next
	})

	return hidden
}

// SetEnabled stores a flow enable/disable edit. Idempotent.
func (o *Overrides) SetEnabled(id string, enabled bool) {
	o.mutate(id, func(ov *Override) { ov.Enabled = &enabled })
}

// SetMulticast stores the per-leg multicast assignment. Idempotent.
func (o *Overrides) SetMulticast(id string, addrs []string) {
	o.mutate(id, func(ov *Override) { ov.Multicast = addrs })
}

func (o *Overrides) mutate(id string, fn func(*Override)) {
	o.mu.Lock()

	ov := o.table[id]
	fn(&ov)

	if ov.empty() {
		delete(o.table, id)
	} else {
		o.table[id] = ov
	}

	data, err := json.MarshalIndent(o.table, "", "  ")
	path := o.path
	o.mu.Unlock()

	if path == "" {
		return
	}

	if err == nil {
		err = os.WriteFile(path, data, 0o600)
	}

	if err != nil {
		o.logger.Warn().Err(err).Str("path", path).Msg("Could not persist overrides")
	}
}
