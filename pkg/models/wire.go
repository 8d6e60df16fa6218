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

import "encoding/json"

// Wire message type discriminators. Every frame on the client connection is
// a single JSON object carrying a "type" field.
const (
	// server -> client
	MsgAuthSeed         = "authseed"
	MsgAuthOK           = "authok"
	MsgAuthFailed       = "authfailed"
	MsgAuthError        = "autherror"
	MsgSync             = "sync"
	MsgResponse         = "response"
	MsgPermissionDenied = "permissionDenied"

	// both directions
	MsgPing = "ping"
	MsgPong = "pong"

	// client -> server
	MsgAuth    = "auth"
	MsgRequest = "request"
)

// PermissionClass gates sync objects and action routes.
type PermissionClass string

const (
	PermissionPublic PermissionClass = "public"
	PermissionGlobal PermissionClass = "global"
)

// Satisfies reports whether a caller holding class c may access a target
// requiring class required.
func (c PermissionClass) Satisfies(required PermissionClass) bool {
	if required == PermissionPublic {
		return true
	}

	return c == PermissionGlobal
}

// PatchOp is one structural diff operation addressed by JSON-pointer path.
type PatchOp struct {
	Op    string      `json:"op"` // "add", "replace", "remove"
	Path  string      `json:"path"`
	Value interface{} `json:"value,omitempty"`
}

// Envelope is the inbound frame shape. Fields are populated according to
// Type; unknown fields are ignored so older clients stay compatible.
type Envelope struct {
	Type string `json:"type"`

	// auth
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`

	// sync subscribe
	Channel  string `json:"channel,omitempty"`
	ObjectID string `json:"objectId,omitempty"`

	// request
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Route  string          `json:"route,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// SyncMessage is the server->client snapshot or patch frame for one object.
type SyncMessage struct {
	Type     string      `json:"type"` // always MsgSync
	Channel  string      `json:"channel"`
	ObjectID string      `json:"objectId,omitempty"`
	Seq      uint64      `json:"seq"`
	First    bool        `json:"first,omitempty"`
	Data     interface{} `json:"data,omitempty"`
	Patch    []PatchOp   `json:"patch,omitempty"`
}

// ResponseMessage correlates a request id with its outcome. Exactly one is
// sent per inbound request; failures carry their text in Message.
type ResponseMessage struct {
	Type    string      `json:"type"` // MsgResponse or MsgPermissionDenied
	ID      string      `json:"id"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// AuthSeedMessage opens the challenge/response handshake.
type AuthSeedMessage struct {
	Type string `json:"type"` // MsgAuthSeed
	Seed string `json:"seed"`
}

// AuthResultMessage closes the handshake.
type AuthResultMessage struct {
	Type    string `json:"type"` // MsgAuthOK / MsgAuthFailed / MsgAuthError
	Message string `json:"message,omitempty"`
}

// PingMessage is the keep-alive frame, echoed back as pong.
type PingMessage struct {
	Type string `json:"type"`
}
