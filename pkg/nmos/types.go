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

// Package nmos talks to IS-04 discovery registries and IS-05 connection
// control endpoints, translating their resources into the canonical model.
package nmos

import "encoding/json"

// queryResource is the common shape shared by IS-04 query API resources.
// Type-specific fields stay in the raw message for mapping.
type queryResource struct {
	ID          string              `json:"id"`
	Label       string              `json:"label"`
	Description string              `json:"description"`
	Version     string              `json:"version"`
	Tags        map[string][]string `json:"tags"`

	// node
	Hostname string `json:"hostname,omitempty"`

	// device / sender / receiver / flow edges
	NodeID   string `json:"node_id,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
	FlowID   string `json:"flow_id,omitempty"`
	SourceID string `json:"source_id,omitempty"`

	// sender / receiver
	Transport         string   `json:"transport,omitempty"`
	InterfaceBindings []string `json:"interface_bindings,omitempty"`
	ManifestHref      string   `json:"manifest_href,omitempty"`
	Subscription      *struct {
		SenderID string `json:"sender_id"`
		Active   bool   `json:"active"`
	} `json:"subscription,omitempty"`

	// device
	Controls []struct {
		Type string `json:"type"`
		Href string `json:"href"`
	} `json:"controls,omitempty"`

	// flow
	Format    string `json:"format,omitempty"`
	MediaType string `json:"media_type,omitempty"`
}

// subscriptionRequest creates an IS-04 query websocket subscription.
type subscriptionRequest struct {
	MaxUpdateRateMs int                    `json:"max_update_rate_ms"`
	ResourcePath    string                 `json:"resource_path"`
	Params          map[string]interface{} `json:"params"`
	Persist         bool                   `json:"persist"`
	SecureWS        bool                   `json:"secure,omitempty"`
}

type subscriptionResponse struct {
	ID           string `json:"id"`
	WSHref       string `json:"ws_href"`
	ResourcePath string `json:"resource_path"`
}

// grain is one message on the query websocket: a batch of pre/post changes.
type grain struct {
	Grain struct {
		Topic string `json:"topic"`
		Data  []struct {
			Path string          `json:"path"`
			Pre  json.RawMessage `json:"pre,omitempty"`
			Post json.RawMessage `json:"post,omitempty"`
		} `json:"data"`
	} `json:"grain"`
}

// transportParams is one leg of an IS-05 single sender/receiver resource.
// Ports may be a number or the string "auto" on the wire.
type transportParams struct {
	SourceIP        *string     `json:"source_ip,omitempty"`
	DestinationIP   *string     `json:"destination_ip,omitempty"`
	MulticastIP     *string     `json:"multicast_ip,omitempty"`
	InterfaceIP     *string     `json:"interface_ip,omitempty"`
	DestinationPort interface{} `json:"destination_port,omitempty"`
	SourcePort      interface{} `json:"source_port,omitempty"`
	RTPEnabled      *bool       `json:"rtp_enabled,omitempty"`
}

// stagedPatch is the body PATCHed to an IS-05 staged endpoint.
type stagedPatch struct {
	SenderID        *string           `json:"sender_id"`
	MasterEnable    bool              `json:"master_enable"`
	TransportParams []transportParams `json:"transport_params,omitempty"`
	Activation      *activation       `json:"activation,omitempty"`
}

type activation struct {
	Mode string `json:"mode"`
}

const activateImmediate = "activate_immediate"
