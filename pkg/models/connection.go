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

package models

import "time"

// ConnectionState is the lifecycle state of a routed sender/receiver pair.
type ConnectionState string

const (
	ConnectionIdle      ConnectionState = "idle"
	ConnectionPreparing ConnectionState = "preparing"
	ConnectionActive    ConnectionState = "active"
	ConnectionFailed    ConnectionState = "failed"
)

// ConnectionLeg carries per-leg routing sub-state.
type ConnectionLeg struct {
	Index       int    `json:"index"`
	MulticastIP string `json:"multicast_ip,omitempty"`
	SourceIP    string `json:"source_ip,omitempty"`
	Port        int    `json:"port,omitempty"`
	Applied     bool   `json:"applied"`
	Error       string `json:"error,omitempty"`
}

// Connection represents an intended or established routing of one sender to
// one receiver. Mutated only by the orchestrator's state machine; a receiver
// holds at most one connection at a time.
type Connection struct {
	ID         string          `json:"id"`
	SenderID   string          `json:"sender_id"`
	ReceiverID string          `json:"receiver_id"`
	State      ConnectionState `json:"state"`
	Legs       []ConnectionLeg `json:"legs,omitempty"`
	LastError  string          `json:"last_error,omitempty"`
	Attempts   int             `json:"attempts"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ConnectionOutcome is one entry of a batch connection response.
type ConnectionOutcome struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	OK          bool   `json:"ok"`
	State       string `json:"state,omitempty"`
	Error       string `json:"error,omitempty"`
}

// TransportParams is the computed per-leg transport descriptor returned by
// prepare/preview requests and applied to receivers on make.
type TransportParams struct {
	Legs []ConnectionLeg `json:"legs"`
}
