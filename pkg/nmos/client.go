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

package nmos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/logger"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
	"github.com/gorilla/websocket"
)

const (
	queryAPIBase       = "/x-nmos/query/v1.3"
	defaultPollEvery   = 30 * time.Second
	reconnectBase      = 2 * time.Second
	reconnectMax       = time.Minute
	subscriptionRateMs = 100
	fetchTimeout       = 15 * time.Second
)

var (
	errSubscriptionRejected = errors.New("registry rejected websocket subscription")
	errUnexpectedStatus     = errors.New("unexpected registry response status")
)

// UpdateFunc receives canonical resource updates bound for the topology store.
type UpdateFunc func(models.ResourceUpdate)

// StatusFunc receives registry connection state changes.
type StatusFunc func(models.RegistryStatus)

// RegistryClient maintains one IS-04 query API connection: a websocket
// subscription when the registry grants one, a full-fetch polling loop
// otherwise. Either way a full snapshot is fetched before incremental
// changes are applied so the store never sees patches against a stale base.
type RegistryClient struct {
	cfg     models.RegistryConfig
	http    *http.Client
	updates UpdateFunc
	status  StatusFunc
	logger  logger.Logger

	known map[string]models.ResourceType // resource id -> type, for remove detection
}

// NewRegistryClient builds a client for one configured registry.
func NewRegistryClient(cfg models.RegistryConfig, updates UpdateFunc, status StatusFunc, log logger.Logger) *RegistryClient {
	return &RegistryClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: fetchTimeout},
		updates: updates,
		status:  status,
		logger:  log.WithComponent("nmos-registry"),
		known:   make(map[string]models.ResourceType),
	}
}

// Run drives the client until ctx is cancelled. Failures never escape; they
// are reported through the status callback and retried with jittered backoff.
func (c *RegistryClient) Run(ctx context.Context) error {
	backoff := reconnectBase

	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}

		c.setStatus(false, err)

		jitter := time.Duration(rand.Int63n(int64(backoff)/2 + 1)) //nolint:gosec // reconnect jitter
		c.logger.Warn().
			Err(err).
			Str("registry", c.cfg.ID).
			Dur("backoff", backoff+jitter).
			Msg("Registry session ended, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff + jitter):
		}

		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

// session runs one connected phase: full resync, then websocket streaming or
// polling until something breaks.
func (c *RegistryClient) session(ctx context.Context) error {
	if err := c.resync(ctx); err != nil {
		return err
	}

	c.setStatus(true, nil)

	wsHref, err := c.createSubscription(ctx)
	if err != nil {
		c.logger.Info().
			Err(err).
			Str("registry", c.cfg.ID).
			Msg("Websocket subscription unavailable, falling back to polling")

		return c.pollLoop(ctx)
	}

	return c.streamLoop(ctx, wsHref)
}

// resync fetches every collection and reconciles it against the known set,
// emitting removes for resources that vanished while disconnected.
func (c *RegistryClient) resync(ctx context.Context) error {
	seen := make(map[string]models.ResourceType)

	for _, rp := range resourcePaths {
		raws, err := c.fetchCollection(ctx, rp.path)
		if err != nil {
			return err
		}

		for _, raw := range raws {
			res, mapErr := mapResource(c.cfg.ID, rp.typ, raw)
			if mapErr != nil {
				c.logger.Warn().Err(mapErr).Str("path", rp.path).Msg("Skipping unparseable registry resource")
				continue
			}

			seen[res.ID] = rp.typ
			c.updates(models.ResourceUpdate{Kind: models.UpdateChange, Resource: res})
		}
	}

	for id, typ := range c.known {
		if _, ok := seen[id]; !ok {
			c.updates(models.ResourceUpdate{
				Kind:     models.UpdateRemove,
				Resource: &models.Resource{ID: id, Type: typ, Origin: c.cfg.ID},
			})
		}
	}

	c.known = seen

	return nil
}

func (c *RegistryClient) fetchCollection(ctx context.Context, path string) ([]json.RawMessage, error) {
	url := c.cfg.QueryAPI + queryAPIBase + "/" + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET %s -> %d", errUnexpectedStatus, path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	return raws, nil
}

func (c *RegistryClient) createSubscription(ctx context.Context) (string, error) {
	reqBody, err := json.Marshal(subscriptionRequest{
		MaxUpdateRateMs: subscriptionRateMs,
		ResourcePath:    "/",
		Params:          map[string]interface{}{},
		Persist:         false,
	})
	if err != nil {
		return "", err
	}

	url := c.cfg.QueryAPI + queryAPIBase + "/subscriptions"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("%w: %d", errSubscriptionRejected, resp.StatusCode)
	}

	var sub subscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return "", err
	}

	if sub.WSHref == "" {
		return "", errSubscriptionRejected
	}

	return sub.WSHref, nil
}

func (c *RegistryClient) streamLoop(ctx context.Context, wsHref string) error {
	dialer := websocket.Dialer{HandshakeTimeout: fetchTimeout}

	conn, _, err := dialer.DialContext(ctx, wsHref, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	c.logger.Info().Str("registry", c.cfg.ID).Str("ws", wsHref).Msg("Streaming registry updates")

	for {
		var g grain
		if err := conn.ReadJSON(&g); err != nil {
			return err
		}

		for _, change := range g.Grain.Data {
			c.applyGrainChange(g.Grain.Topic, change.Path, change.Pre, change.Post)
		}
	}
}

func (c *RegistryClient) applyGrainChange(topic, path string, pre, post json.RawMessage) {
	typ, ok := typeForPath(topic)
	if !ok {
		// Subscriptions rooted at "/" carry the collection in the path.
		if typ, ok = typeForPath(path); !ok {
			return
		}
	}

	switch {
	case len(post) > 0:
		res, err := mapResource(c.cfg.ID, typ, post)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Skipping unparseable grain resource")
			return
		}

		kind := models.UpdateChange
		if _, known := c.known[res.ID]; !known {
			kind = models.UpdateAdd
		}

		c.known[res.ID] = typ
		c.updates(models.ResourceUpdate{Kind: kind, Resource: res})
	case len(pre) > 0:
		var stub struct {
			ID string `json:"id"`
		}

		if err := json.Unmarshal(pre, &stub); err != nil || stub.ID == "" {
			return
		}

		delete(c.known, stub.ID)
		c.updates(models.ResourceUpdate{
			Kind:     models.UpdateRemove,
			Resource: &models.Resource{ID: stub.ID, Type: typ, Origin: c.cfg.ID},
		})
	}
}

func (c *RegistryClient) pollLoop(ctx context.Context) error {
	interval := time.Duration(c.cfg.PollInterval)
	if interval <= 0 {
		interval = defaultPollEvery
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.resync(ctx); err != nil {
				return err
			}
		}
	}
}

func (c *RegistryClient) setStatus(connected bool, err error) {
	if c.status == nil {
		return
	}

	st := models.RegistryStatus{
		ID:        c.cfg.ID,
		URL:       c.cfg.QueryAPI,
		Connected: connected,
		Since:     time.Now().UTC(),
	}

	if err != nil {
		st.LastError = err.Error()
	}

	c.status(st)
}
