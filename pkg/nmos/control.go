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
	"net/http"
	"time"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/logger"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
)

var (
	errNoControlEndpoint = errors.New("resource has no connection control endpoint")
	errControlRejected   = errors.New("control endpoint rejected request")
)

// ControlClient executes IS-05 connection control calls against device
// endpoints. Every call carries a bounded timeout.
type ControlClient struct {
	http   *http.Client
	logger logger.Logger
}

// NewControlClient builds a control client with the given per-call timeout.
func NewControlClient(timeout time.Duration, log logger.Logger) *ControlClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &ControlClient{
		http:   &http.Client{Timeout: timeout},
		logger: log.WithComponent("nmos-control"),
	}
}

// SenderTransport fetches the sender's active transport descriptor and maps
// it into per-leg connection parameters.
func (c *ControlClient) SenderTransport(ctx context.Context, sender models.Resource) (*models.TransportParams, error) {
	if sender.ControlHref == "" {
		return nil, fmt.Errorf("%w: sender %s", errNoControlEndpoint, sender.ID)
	}

	url := sender.ControlHref + "/single/senders/" + sender.ID + "/active"

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
		return nil, fmt.Errorf("%w: GET sender active -> %d", errControlRejected, resp.StatusCode)
	}

	var active struct {
		MasterEnable    bool              `json:"master_enable"`
		TransportParams []transportParams `json:"transport_params"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&active); err != nil {
		return nil, err
	}

	out := &models.TransportParams{}

	for i, tp := range active.TransportParams {
		leg := models.ConnectionLeg{Index: i}

		if tp.SourceIP != nil {
			leg.SourceIP = *tp.SourceIP
		}

		switch {
		case tp.MulticastIP != nil:
			leg.MulticastIP = *tp.MulticastIP
		case tp.DestinationIP != nil:
			leg.MulticastIP = *tp.DestinationIP
		}

		leg.Port = toPort(tp.DestinationPort)
		out.Legs = append(out.Legs, leg)
	}

	return out, nil
}

// ApplyReceiver stages the sender's transport parameters on the receiver,
// leg n to leg n, and requests immediate activation.
func (c *ControlClient) ApplyReceiver(ctx context.Context, receiver models.Resource, senderID string, params *models.TransportParams) error {
	if receiver.ControlHref == "" {
		return fmt.Errorf("%w: receiver %s", errNoControlEndpoint, receiver.ID)
	}

	patch := stagedPatch{
		SenderID:     &senderID,
		MasterEnable: true,
		Activation:   &activation{Mode: activateImmediate},
	}

	for _, leg := range params.Legs {
		tp := transportParams{}

		if leg.MulticastIP != "" {
			v := leg.MulticastIP
			tp.MulticastIP = &v
		}

		if leg.SourceIP != "" {
			v := leg.SourceIP
			tp.SourceIP = &v
		}

		if leg.Port > 0 {
			tp.DestinationPort = leg.Port
		}

		enabled := true
		tp.RTPEnabled = &enabled
		patch.TransportParams = append(patch.TransportParams, tp)
	}

	return c.patchStaged(ctx, receiver, &patch)
}

// DisconnectReceiver clears the receiver's subscription and disables it.
func (c *ControlClient) DisconnectReceiver(ctx context.Context, receiver models.Resource) error {
	if receiver.ControlHref == "" {
		return fmt.Errorf("%w: receiver %s", errNoControlEndpoint, receiver.ID)
	}

	patch := stagedPatch{
		SenderID:     nil,
		MasterEnable: false,
		Activation:   &activation{Mode: activateImmediate},
	}

	return c.patchStaged(ctx, receiver, &patch)
}

func (c *ControlClient) patchStaged(ctx context.Context, receiver models.Resource, patch *stagedPatch) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return err
	}

	url := receiver.ControlHref + "/single/receivers/" + receiver.ID + "/staged"

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("%w: PATCH staged -> %d", errControlRejected, resp.StatusCode)
	}

	c.logger.Debug().
		Str("receiver", receiver.ID).
		Bool("enable", patch.MasterEnable).
		Msg("Staged receiver update applied")

	return nil
}

func toPort(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
