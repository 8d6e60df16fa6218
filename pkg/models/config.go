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

import (
	"errors"
	"time"
)

var errNoListenAddr = errors.New("listen_addr is required")

// Duration wraps time.Duration for JSON config fields written as strings
// ("30s", "1m") or integer nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		parsed, err := time.ParseDuration(string(data[1 : len(data)-1]))
		if err != nil {
			return err
		}

		*d = Duration(parsed)

		return nil
	}

	var ns int64
	for _, c := range data {
		if c < '0' || c > '9' {
			return errors.New("invalid duration literal")
		}

		ns = ns*10 + int64(c-'0')
	}

	*d = Duration(ns)

	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// RegistryConfig describes one upstream discovery registry.
type RegistryConfig struct {
	ID           string   `json:"id"`
	QueryAPI     string   `json:"query_api"` // base URL of the query endpoint
	PollInterval Duration `json:"poll_interval,omitempty"`
}

// DeviceConfig describes one adapter-managed device. Type selects the
// adapter constructor; an unknown type disables this entry only.
type DeviceConfig struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Address      string   `json:"address"`
	Username     string   `json:"username,omitempty"`
	Password     string   `json:"password,omitempty"`
	Community    string   `json:"community,omitempty"` // snmp credential
	PollInterval Duration `json:"poll_interval,omitempty"`
}

// ServerConfig tunes the client-facing websocket endpoint.
type ServerConfig struct {
	ListenAddr       string   `json:"listen_addr"`
	PingInterval     Duration `json:"ping_interval,omitempty"`
	MissedPingLimit  int      `json:"missed_ping_limit,omitempty"`
	SendQueueLength  int      `json:"send_queue_length,omitempty"`
	AuthTimeout      Duration `json:"auth_timeout,omitempty"`
	AllowedOrigins   []string `json:"allowed_origins,omitempty"`
	ReadBufferSize   int      `json:"read_buffer_size,omitempty"`
	WriteBufferSize  int      `json:"write_buffer_size,omitempty"`
	ShutdownGrace    Duration `json:"shutdown_grace,omitempty"`
	ControlTimeout   Duration `json:"control_timeout,omitempty"`
	RetryBackoffBase Duration `json:"retry_backoff_base,omitempty"`
	RetryBackoffMax  Duration `json:"retry_backoff_max,omitempty"`
}

// UserConfig is one pre-shared credential. A server configured with no users
// skips the auth challenge and grants global permission to every session.
type UserConfig struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoggingConfig configures the zerolog output.
type LoggingConfig struct {
	Level      string `json:"level,omitempty"`
	Debug      bool   `json:"debug,omitempty"`
	Output     string `json:"output,omitempty"`
	TimeFormat string `json:"time_format,omitempty"`
}

// CoreConfig is the process-level configuration loaded at startup.
type CoreConfig struct {
	Server        ServerConfig     `json:"server"`
	Users         []UserConfig     `json:"users,omitempty"`
	Registries    []RegistryConfig `json:"registries,omitempty"`
	Devices       []DeviceConfig   `json:"devices,omitempty"`
	Logging       LoggingConfig    `json:"logging,omitempty"`
	OverridesFile string           `json:"overrides_file,omitempty"`
	UIConfigFile  string           `json:"ui_config_file,omitempty"`

	// Ordered identity fields used for device deduplication, first match
	// wins. Defaults to serial, name, alias.
	IdentityPrecedence []string `json:"identity_precedence,omitempty"`
	SerialTailDigits   int      `json:"serial_tail_digits,omitempty"`
}

// Validate implements the config loader's validation hook.
func (c *CoreConfig) Validate() error {
	if c.Server.ListenAddr == "" {
		return errNoListenAddr
	}

	if c.Server.PingInterval == 0 {
		c.Server.PingInterval = Duration(15 * time.Second)
	}

	if c.Server.MissedPingLimit == 0 {
		c.Server.MissedPingLimit = 3
	}

	if c.Server.SendQueueLength == 0 {
		c.Server.SendQueueLength = 256
	}

	if c.Server.AuthTimeout == 0 {
		c.Server.AuthTimeout = Duration(10 * time.Second)
	}

	if c.Server.ControlTimeout == 0 {
		c.Server.ControlTimeout = Duration(5 * time.Second)
	}

	if c.Server.RetryBackoffBase == 0 {
		c.Server.RetryBackoffBase = Duration(2 * time.Second)
	}

	if c.Server.RetryBackoffMax == 0 {
		c.Server.RetryBackoffMax = Duration(2 * time.Minute)
	}

	if len(c.IdentityPrecedence) == 0 {
		c.IdentityPrecedence = []string{"serial", "name", "alias"}
	}

	if c.SerialTailDigits == 0 {
		c.SerialTailDigits = 3
	}

	return nil
}
