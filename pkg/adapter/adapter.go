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

// Package adapter defines the pluggable device adapter contract and the
// framework that polls adapters and feeds their normalized state into the
// topology store.
package adapter

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/logger"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
)

var (
	// ErrUnknownType is returned when no constructor is registered for a
	// declared adapter type.
	ErrUnknownType = errors.New("unknown adapter type")
	// ErrUnsupportedAction is returned by adapters for control actions they
	// do not implement.
	ErrUnsupportedAction = errors.New("unsupported control action")
)

// Adapter is the contract every hardware adapter satisfies: one poll
// producing a normalized device description. Implementations own their
// session handling; a fetch failure is returned as an error and the
// framework converts it into an unreachable description.
type Adapter interface {
	Describe(ctx context.Context) (*models.DeviceDescription, error)
	Close() error
}

// Controller is optionally implemented by adapters exposing device-specific
// control actions (e.g. toggling an auxiliary display mode).
type Controller interface {
	Control(ctx context.Context, action string, params json.RawMessage) error
}

// Constructor builds an adapter from its device configuration.
type Constructor func(cfg models.DeviceConfig, log logger.Logger) (Adapter, error)
