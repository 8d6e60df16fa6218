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

// Package models defines the shared data types exchanged between the
// registry clients, device adapters, topology store, orchestrator, and the
// client-facing sync layer.
package models

import (
	"encoding/json"
	"time"
)

// ResourceType identifies the kind of discovered resource.
type ResourceType string

const (
	ResourceNode     ResourceType = "node"
	ResourceDevice   ResourceType = "device"
	ResourceSender   ResourceType = "sender"
	ResourceReceiver ResourceType = "receiver"
	ResourceFlow     ResourceType = "flow"
)

// ResourceSource tags where a resource was learned from.
type ResourceSource string

const (
	SourceRegistry ResourceSource = "registry"
	SourceAdapter  ResourceSource = "adapter"
)

// Leg is one redundant network path a sender or receiver exposes.
// Legs are paired strictly by index; leg n of a sender always maps to
// leg n of a receiver.
type Leg struct {
	Index         int    `json:"index"`
	Interface     string `json:"interface,omitempty"`
	SourceIP      string `json:"source_ip,omitempty"`
	MulticastIP   string `json:"multicast_ip,omitempty"`
	DestinationIP string `json:"destination_ip,omitempty"`
	Port          int    `json:"port,omitempty"`
	Enabled       bool   `json:"enabled"`
}

// Resource is one entry in the merged topology graph. The key is globally
// unique and assigned by the originating registry or adapter. Version is a
// per-resource monotonic counter maintained by the topology store; every
// accepted mutation increments it.
type Resource struct {
	ID      string         `json:"id"`
	Type    ResourceType   `json:"type"`
	Source  ResourceSource `json:"source"`
	Origin  string         `json:"origin"` // registry or adapter name that produced it
	Version uint64         `json:"version"`

	Label       string `json:"label,omitempty"`
	Description string `json:"description,omitempty"`

	// Identity candidates used for device deduplication.
	Serial string `json:"serial,omitempty"`
	Name   string `json:"name,omitempty"`
	Alias  string `json:"alias,omitempty"`

	// Graph edges.
	NodeID   string `json:"node_id,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
	FlowID   string `json:"flow_id,omitempty"`   // sender -> flow
	SenderID string `json:"sender_id,omitempty"` // receiver subscription / flow origin

	Format string `json:"format,omitempty"` // media format urn for flows
	Legs   []Leg  `json:"legs,omitempty"`

	// Interface inventory and health, populated for adapter-sourced devices.
	Interfaces []InterfaceStatus `json:"interfaces,omitempty"`
	Reachable  *bool             `json:"reachable,omitempty"`
	LastError  string            `json:"last_error,omitempty"`

	ControlHref string `json:"control_href,omitempty"` // connection-control endpoint

	UpdatedAt time.Time       `json:"updated_at"`
	Raw       json.RawMessage `json:"-"`
}

// Identity returns the dedup candidate fields in declaration order.
func (r *Resource) Identity() (serial, name, alias string) {
	return r.Serial, r.Name, r.Alias
}

// UpdateKind discriminates topology mutations.
type UpdateKind string

const (
	UpdateAdd    UpdateKind = "add"
	UpdateChange UpdateKind = "change"
	UpdateRemove UpdateKind = "remove"
)

// ResourceUpdate is the unit of work streamed into the topology store by
// registry clients and adapter runners.
type ResourceUpdate struct {
	Kind     UpdateKind `json:"kind"`
	Resource *Resource  `json:"resource"`
}

// RegistryStatus reports the health of one upstream discovery registry.
type RegistryStatus struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Connected bool      `json:"connected"`
	LastError string    `json:"last_error,omitempty"`
	Since     time.Time `json:"since"`
}
