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

// Package dispatch routes client action requests to registered handlers and
// shapes every outcome into exactly one response frame.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/logger"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
)

var (
	// ErrUnknownRoute is returned for a method/route pair with no handler.
	ErrUnknownRoute = errors.New("unknown route")
	// ErrAlreadyRegistered guards against duplicate route registration.
	ErrAlreadyRegistered = errors.New("route already registered")
)

// BadRequestError marks a handler failure caused by a malformed payload so
// the response distinguishes client mistakes from execution failures.
type BadRequestError struct {
	Reason string
}

func (e *BadRequestError) Error() string { return e.Reason }

// BadRequest wraps a payload decoding problem.
func BadRequest(format string, args ...interface{}) error {
	return &BadRequestError{Reason: fmt.Sprintf(format, args...)}
}

// Caller identifies the requesting session for permission checks and logs.
type Caller struct {
	User       string
	Permission models.PermissionClass
}

// HandlerFunc executes one action. The returned value becomes the response
// data; a returned error becomes the response message text.
type HandlerFunc func(ctx context.Context, caller Caller, payload json.RawMessage) (interface{}, error)

type routeKey struct {
	method string
	route  string
}

type routeEntry struct {
	permission models.PermissionClass
	handler    HandlerFunc
}

// Dispatcher is the action route table. Registration happens at startup;
// dispatching is concurrent.
type Dispatcher struct {
	mu     sync.RWMutex
	routes map[routeKey]routeEntry
	logger logger.Logger
}

// NewDispatcher returns an empty route table.
func NewDispatcher(log logger.Logger) *Dispatcher {
	return &Dispatcher{
		routes: make(map[routeKey]routeEntry),
		logger: log.WithComponent("dispatch"),
	}
}

// Register binds a handler to a method/route pair with a required permission
// class.
func (d *Dispatcher) Register(method, route string, permission models.PermissionClass, handler HandlerFunc) error {
	if handler == nil {
		return fmt.Errorf("nil handler for %s %s", method, route)
	}

	key := routeKey{method: method, route: route}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.routes[key]; ok {
		return fmt.Errorf("%w: %s %s", ErrAlreadyRegistered, method, route)
	}

	d.routes[key] = routeEntry{permission: permission, handler: handler}

	return nil
}

// MustRegister is Register for startup wiring, where a duplicate is a
// programming error.
func (d *Dispatcher) MustRegister(method, route string, permission models.PermissionClass, handler HandlerFunc) {
	if err := d.Register(method, route, permission, handler); err != nil {
		d.logger.Fatal().Err(err).Msg("Route registration failed")
	}
}

// Dispatch resolves and runs the handler for one request envelope and always
// returns exactly one response message carrying the request id.
func (d *Dispatcher) Dispatch(ctx context.Context, caller Caller, env *models.Envelope) models.ResponseMessage {
	resp := models.ResponseMessage{Type: models.MsgResponse, ID: env.ID}

	d.mu.RLock()
	entry, ok := d.routes[routeKey{method: env.Method, route: env.Route}]
	d.mu.RUnlock()

	if !ok {
		resp.Message = fmt.Sprintf("%s: %s %s", ErrUnknownRoute, env.Method, env.Route)
		return resp
	}

	if !caller.Permission.Satisfies(entry.permission) {
		d.logger.Warn().
			Str("user", caller.User).
			Str("method", env.Method).
			Str("route", env.Route).
			Msg("Request denied")

		resp.Type = models.MsgPermissionDenied
		resp.Message = fmt.Sprintf("route %s requires %s access", env.Route, entry.permission)

		return resp
	}

	data, err := entry.handler(ctx, caller, env.Data)
	if err != nil {
		var badReq *BadRequestError
		if errors.As(err, &badReq) {
			resp.Message = "bad request: " + badReq.Reason
			return resp
		}

		d.logger.Error().
			Err(err).
			Str("method", env.Method).
			Str("route", env.Route).
			Msg("Request handler failed")

		resp.Message = err.Error()

		return resp
	}

	resp.Data = data

	return resp
}
