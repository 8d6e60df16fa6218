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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
	"github.com/google/uuid"
)

var (
	// ErrUnknownSender is returned when the source id resolves to nothing.
	ErrUnknownSender = errors.New("unknown sender")
	// ErrUnknownReceiver is returned when the destination id resolves to nothing.
	ErrUnknownReceiver = errors.New("unknown receiver")
	// ErrSenderBusy is returned when a sender is exclusively bound elsewhere
	// and fan-out was not requested.
	ErrSenderBusy = errors.New("sender already bound to another receiver")
)

// ControlPlane executes device control calls. Satisfied by nmos.ControlClient.
type ControlPlane interface {
	SenderTransport(ctx context.Context, sender models.Resource) (*models.TransportParams, error)
	ApplyReceiver(ctx context.Context, receiver models.Resource, senderID string, params *models.TransportParams) error
	DisconnectReceiver(ctx context.Context, receiver models.Resource) error
}

// ConnectionPair is one entry of a batch request.
type ConnectionPair struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// MakeConnectionRequest is the payload of the makeconnection route. An empty
// Source means disconnect. Preview and Prepare compute the transport
// descriptor without touching device state.
type MakeConnectionRequest struct {
	Source      string           `json:"source"`
	Destination string           `json:"destination"`
	Preview     bool             `json:"preview,omitempty"`
	Prepare     bool             `json:"prepare,omitempty"`
	Fanout      bool             `json:"fanout,omitempty"`
	Multiple    []ConnectionPair `json:"multiple,omitempty"`
}

// MakeConnectionResponse carries either the single outcome, the computed
// descriptor for prepare/preview, or the per-pair batch outcomes.
type MakeConnectionResponse struct {
	Connection *models.Connection         `json:"connection,omitempty"`
	Transport  *models.TransportParams    `json:"transport,omitempty"`
	Outcomes   []models.ConnectionOutcome `json:"outcomes,omitempty"`
}

// connState pairs one connection record with its own lock so unrelated
// connections transition concurrently.
type connState struct {
	mu        chan struct{} // 1-buffered semaphore, lockable with context
	conn      models.Connection
	nextRetry time.Time
	retrying  bool
}

func newConnState(receiverID string) *connState {
	cs := &connState{
		mu: make(chan struct{}, 1),
		conn: models.Connection{
			ID:         uuid.NewString(),
			ReceiverID: receiverID,
			State:      models.ConnectionIdle,
		},
	}

	return cs
}

func (cs *connState) lock() { cs.mu <- struct{}{} }

func (cs *connState) unlock() { <-cs.mu }

// MakeConnection executes a single or batch routing request. Batch pairs are
// independent: one failure never blocks or rolls back the others.
func (o *Orchestrator) MakeConnection(ctx context.Context, req *MakeConnectionRequest) (*MakeConnectionResponse, error) {
	if len(req.Multiple) > 0 {
		return o.makeBatch(ctx, req.Multiple)
	}

	mode := modeMake

	switch {
	case req.Preview:
		mode = modePreview
	case req.Prepare:
		mode = modePrepare
	}

	conn, transport, err := o.connectPair(ctx, req.Source, req.Destination, mode, req.Fanout)
	if err != nil {
		return nil, err
	}

	return &MakeConnectionResponse{Connection: conn, Transport: transport}, nil
}

func (o *Orchestrator) makeBatch(ctx context.Context, pairs []ConnectionPair) (*MakeConnectionResponse, error) {
	// A source repeated within one batch is an explicit fan-out request for
	// those pairs.
	sourceCount := make(map[string]int)
	for _, p := range pairs {
		if p.Source != "" {
			sourceCount[p.Source]++
		}
	}

	resp := &MakeConnectionResponse{Outcomes: make([]models.ConnectionOutcome, 0, len(pairs))}

	for _, p := range pairs {
		outcome := models.ConnectionOutcome{Source: p.Source, Destination: p.Destination}

		conn, _, err := o.connectPair(ctx, p.Source, p.Destination, modeMake, sourceCount[p.Source] > 1)
		if err != nil {
			outcome.Error = err.Error()
		} else {
			outcome.OK = true
			if conn != nil {
				outcome.State = string(conn.State)
			}
		}

		resp.Outcomes = append(resp.Outcomes, outcome)
	}

	return resp, nil
}

type connectMode int

const (
	modeMake connectMode = iota
	modePrepare
	modePreview
)

// connectPair drives one receiver through the connection state machine.
func (o *Orchestrator) connectPair(ctx context.Context, source, dest string, mode connectMode, fanout bool) (*models.Connection, *models.TransportParams, error) {
	receiver, ok := o.store.Get(dest)
	if !ok || receiver.Type != models.ResourceReceiver {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownReceiver, dest)
	}

	if source == "" {
		if mode != modeMake {
			// A disconnect has no descriptor to compute; device state stays
			// untouched for prepare/preview.
			return nil, nil, nil
		}

		conn, err := o.disconnect(ctx, receiver)

		return conn, nil, err
	}

	sender, ok := o.store.Get(source)
	if !ok || sender.Type != models.ResourceSender {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownSender, source)
	}

	if !fanout {
		if boundTo, busy := o.senderBoundElsewhere(source, dest); busy {
			return nil, nil, fmt.Errorf("%w: %s -> %s", ErrSenderBusy, source, boundTo)
		}
	}

	params, err := o.senderTransport(ctx, sender)
	if err != nil && mode != modeMake {
		return nil, nil, err
	}

	if mode != modeMake {
		// Computed descriptor only; device state untouched.
		return nil, params, nil
	}

	cs := o.connFor(dest)
	cs.lock()
	defer cs.unlock()

	return o.execute(ctx, cs, sender, receiver, params, err)
}

// setConn mutates the connection record under the shared map lock so the
// publishers can snapshot records without racing the state machine. The
// caller must hold the connection's transition lock.
func (o *Orchestrator) setConn(cs *connState, fn func(c *models.Connection)) models.Connection {
	o.connMu.Lock()
	defer o.connMu.Unlock()

	fn(&cs.conn)
	cs.conn.UpdatedAt = time.Now().UTC()

	return cs.conn
}

// execute performs the preparing -> active|failed transition under the
// connection's lock. transportErr carries a failed descriptor fetch so it
// lands in the same failure path as a rejected apply.
func (o *Orchestrator) execute(ctx context.Context, cs *connState, sender, receiver models.Resource, params *models.TransportParams, transportErr error) (*models.Connection, *models.TransportParams, error) {
	o.setConn(cs, func(c *models.Connection) {
		c.SenderID = sender.ID
		c.State = models.ConnectionPreparing
		c.LastError = ""
	})
	o.publishConnections()

	err := transportErr
	if err == nil {
		err = o.control.ApplyReceiver(ctx, receiver, sender.ID, params)
	}

	if err != nil {
		conn := o.setConn(cs, func(c *models.Connection) {
			c.State = models.ConnectionFailed
			c.LastError = err.Error()
			c.Attempts++
		})
		cs.nextRetry = time.Now().Add(o.backoff(conn.Attempts))
		o.publishConnections()
		o.publishCrosspoint()

		return &conn, params, err
	}

	conn := o.setConn(cs, func(c *models.Connection) {
		if params != nil {
			c.Legs = make([]models.ConnectionLeg, len(params.Legs))
			copy(c.Legs, params.Legs)

			for i := range c.Legs {
				c.Legs[i].Applied = true
			}
		}

		c.State = models.ConnectionActive
		c.Attempts = 0
	})
	cs.nextRetry = time.Time{}
	o.publishConnections()
	o.publishCrosspoint()

	return &conn, params, nil
}

func (o *Orchestrator) disconnect(ctx context.Context, receiver models.Resource) (*models.Connection, error) {
	cs := o.connFor(receiver.ID)
	cs.lock()
	defer cs.unlock()

	err := o.control.DisconnectReceiver(ctx, receiver)
	if err != nil {
		conn := o.setConn(cs, func(c *models.Connection) {
			c.State = models.ConnectionFailed
			c.LastError = err.Error()
			c.Attempts++
		})
		cs.nextRetry = time.Now().Add(o.backoff(conn.Attempts))
		o.publishConnections()

		return &conn, err
	}

	conn := o.setConn(cs, func(c *models.Connection) {
		c.State = models.ConnectionIdle
		c.SenderID = ""
		c.Legs = nil
		c.LastError = ""
		c.Attempts = 0
	})
	cs.nextRetry = time.Time{}
	o.publishConnections()
	o.publishCrosspoint()

	return &conn, nil
}

// senderTransport fetches the descriptor and applies any multicast override
// for the sender, leg by leg.
func (o *Orchestrator) senderTransport(ctx context.Context, sender models.Resource) (*models.TransportParams, error) {
	params, err := o.control.SenderTransport(ctx, sender)
	if err != nil {
		return nil, err
	}

	if ov, ok := o.overrides.Get(sender.ID); ok && len(ov.Multicast) > 0 {
		for i := range params.Legs {
			if i < len(ov.Multicast) && ov.Multicast[i] != "" {
				params.Legs[i].MulticastIP = ov.Multicast[i]
			}
		}
	}

	return params, nil
}

func (o *Orchestrator) senderBoundElsewhere(senderID, receiverID string) (string, bool) {
	o.connMu.Lock()
	defer o.connMu.Unlock()

	for rid, cs := range o.conns {
		if rid == receiverID {
			continue
		}

		// Peek without the per-connection lock: binding checks are advisory
		// and the authoritative check is the device itself.
		if cs.conn.SenderID == senderID &&
			(cs.conn.State == models.ConnectionActive || cs.conn.State == models.ConnectionPreparing) {
			return rid, true
		}
	}

	return "", false
}

func (o *Orchestrator) connFor(receiverID string) *connState {
	o.connMu.Lock()
	defer o.connMu.Unlock()

	cs, ok := o.conns[receiverID]
	if !ok {
		cs = newConnState(receiverID)
		o.conns[receiverID] = cs
	}

	return cs
}

func (o *Orchestrator) connectionFor(receiverID string) (models.Connection, bool) {
	o.connMu.Lock()
	defer o.connMu.Unlock()

	cs, ok := o.conns[receiverID]
	if !ok {
		return models.Connection{}, false
	}

	return cs.conn, true
}

func (o *Orchestrator) backoff(attempts int) time.Duration {
	d := o.backoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= o.backoffMax {
			return o.backoffMax
		}
	}

	if d > o.backoffMax {
		d = o.backoffMax
	}

	return d
}

// maybeRetry runs failed connections whose sender or receiver belongs to the
// changed group through exactly one new attempt, gated by the backoff
// deadline and a per-connection in-flight guard.
func (o *Orchestrator) maybeRetry(ctx context.Context, groupID string) {
	candidates := o.retryCandidates(groupID)

	for _, cs := range candidates {
		cs.lock()

		if cs.conn.State != models.ConnectionFailed || cs.retrying || time.Now().Before(cs.nextRetry) {
			cs.unlock()
			continue
		}

		cs.retrying = true
		sender, senderOK := o.store.Get(cs.conn.SenderID)
		receiver, receiverOK := o.store.Get(cs.conn.ReceiverID)

		if !senderOK || !receiverOK {
			cs.retrying = false
			cs.unlock()
			continue
		}

		o.logger.Info().
			Str("sender", sender.ID).
			Str("receiver", receiver.ID).
			Int("attempts", cs.conn.Attempts).
			Msg("Retrying failed connection after topology change")

		params, err := o.senderTransport(ctx, sender)
		_, _, _ = o.execute(ctx, cs, sender, receiver, params, err)

		cs.retrying = false
		cs.unlock()
	}
}

func (o *Orchestrator) retryCandidates(groupID string) []*connState {
	o.connMu.Lock()
	defer o.connMu.Unlock()

	var out []*connState

	for _, cs := range o.conns {
		if cs.conn.State != models.ConnectionFailed {
			continue
		}

		if o.inGroup(cs.conn.SenderID, groupID) || o.inGroup(cs.conn.ReceiverID, groupID) {
			out = append(out, cs)
		}
	}

	return out
}

func (o *Orchestrator) inGroup(resourceID, groupID string) bool {
	if resourceID == "" || groupID == "" {
		return false
	}

	res, ok := o.store.Get(resourceID)
	if !ok {
		return false
	}

	gid, ok := o.store.GroupOf(res.ID)
	if ok && gid == groupID {
		return true
	}

	// Senders and receivers ride on their parent device's group.
	if res.DeviceID != "" {
		if gid, ok := o.store.GroupOf(res.DeviceID); ok && gid == groupID {
			return true
		}
	}

	return false
}
