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

// Package restadapter manages gateway devices exposing a JSON status API
// with token-based sessions.
package restadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/adapter"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/logger"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
)

// TypeName is the adapter type string used in device configuration.
const TypeName = "rest"

const requestTimeout = 8 * time.Second

var (
	errNoAddress   = errors.New("rest adapter requires an address")
	errLoginFailed = errors.New("device login failed")
	errStatusCode  = errors.New("unexpected device response status")
)

// Adapter polls one HTTP device. Session tokens are acquired lazily and
// refreshed once on authorization failures.
type Adapter struct {
	cfg    models.DeviceConfig
	base   string
	client *adapter.TokenClient
	logger logger.Logger
}

// New is the registered constructor for the "rest" type.
func New(cfg models.DeviceConfig, log logger.Logger) (adapter.Adapter, error) {
	if cfg.Address == "" {
		return nil, errNoAddress
	}

	base := strings.TrimSuffix(cfg.Address, "/")
	if !strings.HasPrefix(base, "http") {
		base = "http://" + base
	}

	a := &Adapter{
		cfg:    cfg,
		base:   base,
		logger: log.WithComponent("rest:" + cfg.Name),
	}

	a.client = &adapter.TokenClient{
		HTTP: &http.Client{Timeout: requestTimeout},
		Auth: a.login,
	}

	return a, nil
}

// statusDocument is the device's status endpoint shape.
type statusDocument struct {
	Name       string `json:"name"`
	Serial     string `json:"serial"`
	Alias      string `json:"alias"`
	Model      string `json:"model"`
	Interfaces []struct {
		Index     int    `json:"index"`
		Name      string `json:"name"`
		LinkUp    bool   `json:"link_up"`
		SpeedMbps uint64 `json:"speed_mbps"`
		MAC       string `json:"mac"`
		Neighbor  string `json:"neighbor"`
	} `json:"interfaces"`
}

// Describe fetches the device status document.
func (a *Adapter) Describe(ctx context.Context) (*models.DeviceDescription, error) {
	resp, err := a.client.Do(ctx, func(token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.base+"/api/status", nil)
		if err != nil {
			return nil, err
		}

		req.Header.Set("Authorization", "Bearer "+token)

		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET status -> %d", errStatusCode, resp.StatusCode)
	}

	var doc statusDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding status document: %w", err)
	}

	desc := &models.DeviceDescription{
		Name:      firstNonEmpty(doc.Name, a.cfg.Name),
		Serial:    doc.Serial,
		Alias:     doc.Alias,
		Model:     doc.Model,
		Reachable: true,
	}

	for _, iface := range doc.Interfaces {
		desc.Interfaces = append(desc.Interfaces, models.InterfaceStatus{
			Index:     iface.Index,
			Name:      iface.Name,
			LinkUp:    iface.LinkUp,
			SpeedMbps: iface.SpeedMbps,
			MAC:       iface.MAC,
			Neighbor:  iface.Neighbor,
		})
	}

	return desc, nil
}

// Control forwards a device action to the control endpoint.
func (a *Adapter) Control(ctx context.Context, action string, params json.RawMessage) error {
	body, err := json.Marshal(map[string]interface{}{
		"action": action,
		"params": params,
	})
	if err != nil {
		return err
	}

	resp, err := a.client.Do(ctx, func(token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+"/api/control", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")

		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: POST control -> %d", errStatusCode, resp.StatusCode)
	}

	return nil
}

// Close has nothing to release; sessions expire server side.
func (*Adapter) Close() error { return nil }

// login exchanges the configured credentials for a session token.
func (a *Adapter) login(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"username": a.cfg.Username,
		"password": a.cfg.Password,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+"/api/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: %d", errLoginFailed, resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}

	if out.Token == "" {
		return "", errLoginFailed
	}

	a.logger.Debug().Msg("Device session established")

	return out.Token, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
