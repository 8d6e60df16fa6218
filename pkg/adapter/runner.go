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
	"reflect"
	"time"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/logger"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
)

const (
	defaultPollInterval = 15 * time.Second
	pollTimeout         = 10 * time.Second
)

// UpdateFunc receives the canonical device resource whenever an adapter's
// normalized description changes.
type UpdateFunc func(models.ResourceUpdate)

// Runner polls one adapter on its own cadence and forwards changed
// descriptions into the topology store. Poll failures surface as an
// unreachable description, never as a runner exit.
type Runner struct {
	name     string
	adapter  Adapter
	interval time.Duration
	updates  UpdateFunc
	logger   logger.Logger

	last *models.DeviceDescription
}

// NewRunner wraps one constructed adapter.
func NewRunner(cfg models.DeviceConfig, a Adapter, updates UpdateFunc, log logger.Logger) *Runner {
	interval := time.Duration(cfg.PollInterval)
	if interval <= 0 {
		interval = defaultPollInterval
	}

	return &Runner{
		name:     cfg.Name,
		adapter:  a,
		interval: interval,
		updates:  updates,
		logger:   log.WithComponent("adapter-runner"),
	}
}

// Run polls until ctx is cancelled, then closes the adapter.
func (r *Runner) Run(ctx context.Context) error {
	defer func() {
		if err := r.adapter.Close(); err != nil {
			r.logger.Warn().Err(err).Str("device", r.name).Msg("Adapter close failed")
		}
	}()

	r.poll(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

func (r *Runner) poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	desc, err := r.adapter.Describe(pollCtx)
	if err != nil {
		// Stale/unreachable is normal operating state, not a fault in the
		// adapter contract.
		desc = &models.DeviceDescription{
			Name:      r.name,
			Reachable: false,
			LastError: err.Error(),
		}

		if r.last != nil {
			desc.Serial = r.last.Serial
			desc.Alias = r.last.Alias
		}

		r.logger.Debug().Err(err).Str("device", r.name).Msg("Adapter poll failed")
	}

	if r.last != nil && reflect.DeepEqual(r.last, desc) {
		return
	}

	r.last = desc
	r.updates(models.ResourceUpdate{Kind: models.UpdateChange, Resource: r.resource(desc)})
}

func (r *Runner) resource(desc *models.DeviceDescription) *models.Resource {
	name := desc.Name
	if name == "" {
		name = r.name
	}

	reachable := desc.Reachable

	return &models.Resource{
		ID:         "adapter:" + r.name,
		Type:       models.ResourceDevice,
		Source:     models.SourceAdapter,
		Origin:     r.name,
		Label:      name,
		Name:       name,
		Serial:     desc.Serial,
		Alias:      desc.Alias,
		Interfaces: desc.Interfaces,
		Reachable:  &reachable,
		LastError:  desc.LastError,
		UpdatedAt:  time.Now().UTC(),
	}
}
