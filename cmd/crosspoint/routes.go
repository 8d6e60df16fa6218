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
	"net/http"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/adapter"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/crosspoint"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/dispatch"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
)

type idRequest struct {
	ID string `json:"id"`
}

type aliasRequest struct {
	ID    string `json:"id"`
	Alias string `json:"alias"`
}

type multicastRequest struct {
	ID   string   `json:"id"`
	Data []string `json:"data"`
	// Older clients send the assignment as "multicast".
	Multicast []string `json:"multicast"`
}

func (r *multicastRequest) addresses() []string {
	if len(r.Data) > 0 {
		return r.Data
	}

	return r.Multicast
}

type deviceControlRequest struct {
	Device string          `json:"device"` // serial, name, or alias
	Action string          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

// registerRoutes binds every client action. All routes require global access;
// read-only flow detail included, since it may expose transport addressing.
func registerRoutes(disp *dispatch.Dispatcher, orch *crosspoint.Orchestrator, manager *adapter.Manager) {
	disp.MustRegister(http.MethodGet, "flowInfo", models.PermissionGlobal,
		func(ctx context.Context, _ dispatch.Caller, payload json.RawMessage) (interface{}, error) {
			var req idRequest
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, dispatch.BadRequest("decoding payload: %v", err)
			}

			return orch.FlowInfo(ctx, req.ID)
		})

	disp.MustRegister(http.MethodPost, "makeconnection", models.PermissionGlobal,
		func(ctx context.Context, _ dispatch.Caller, payload json.RawMessage) (interface{}, error) {
			var req crosspoint.MakeConnectionRequest
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, dispatch.BadRequest("decoding payload: %v", err)
			}

			return orch.MakeConnection(ctx, &req)
		})

	disp.MustRegister(http.MethodPost, "changealias", models.PermissionGlobal,
		func(_ context.Context, _ dispatch.Caller, payload json.RawMessage) (interface{}, error) {
			var req aliasRequest
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, dispatch.BadRequest("decoding payload: %v", err)
			}

			return nil, orch.ChangeAlias(req.ID, req.Alias)
		})

	disp.MustRegister(http.MethodPost, "enableFlow", models.PermissionGlobal, setFlowEnabled(orch, true))
	disp.MustRegister(http.MethodPost, "disableFlow", models.PermissionGlobal, setFlowEnabled(orch, false))

	disp.MustRegister(http.MethodPost, "setMulticast", models.PermissionGlobal,
		func(_ context.Context, _ dispatch.Caller, payload json.RawMessage) (interface{}, error) {
			var req multicastRequest
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, dispatch.BadRequest("decoding payload: %v", err)
			}

			return nil, orch.SetMulticast(req.ID, req.addresses())
		})

	disp.MustRegister(http.MethodPost, "togglehidden", models.PermissionGlobal,
		func(_ context.Context, _ dispatch.Caller, payload json.RawMessage) (interface{}, error) {
			var req idRequest
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, dispatch.BadRequest("decoding payload: %v", err)
			}

			hidden, err := orch.ToggleHidden(req.ID)
			if err != nil {
				return nil, err
			}

			return map[string]bool{"hidden": hidden}, nil
		})

	disp.MustRegister(http.MethodPost, "devicecontrol", models.PermissionGlobal,
		func(ctx context.Context, _ dispatch.Caller, payload json.RawMessage) (interface{}, error) {
			var req deviceControlRequest
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, dispatch.BadRequest("decoding payload: %v", err)
			}

			name, err := orch.ResolveAdapterDevice(req.Device)
			if err != nil {
				return nil, err
			}

			return nil, manager.Control(ctx, name, req.Action, req.Params)
		})
}

func setFlowEnabled(orch *crosspoint.Orchestrator, enabled bool) dispatch.HandlerFunc {
	return func(_ context.Context, _ dispatch.Caller, payload json.RawMessage) (interface{}, error) {
		var req idRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, dispatch.BadRequest("decoding payload: %v", err)
		}

		return nil, orch.SetFlowEnabled(req.ID, enabled)
	}
}
