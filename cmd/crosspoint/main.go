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

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/adapter"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/adapter/restadapter"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/adapter/snmpadapter"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/config"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/crosspoint"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/dispatch"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/identity"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/logger"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/nmos"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/session"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/syncobj"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/topology"
)

const logRingSize = 500

func main() {
	if err := run(); err != nil {
		stdlog.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/crosspoint/core.json", "Path to core config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Bootstrap logger for config loading; replaced once logging config is known.
	bootLog, err := logger.New(models.LoggingConfig{})
	if err != nil {
		return fmt.Errorf("creating bootstrap logger: %w", err)
	}

	var cfg models.CoreConfig

	loader := config.NewConfig(bootLog)
	if err := loader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ring := logger.NewRingHook(logRingSize)

	log, err := logger.New(cfg.Logging, ring)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}

	syncReg := syncobj.NewRegistry(log)
	if err := registerSyncObjects(syncReg, &cfg, log); err != nil {
		return fmt.Errorf("registering sync objects: %w", err)
	}

	// Feed the log ring into its sync object so clients stream process logs.
	ring.SetNotify(func() {
		_ = syncReg.Publish(models.SyncLog, func(interface{}) interface{} {
			return ring.Snapshot()
		})
	})

	store := topology.NewStore(identity.Config{
		Precedence:       cfg.IdentityPrecedence,
		SerialTailDigits: cfg.SerialTailDigits,
	}, log)

	registryClients := buildRegistryClients(&cfg, store, syncReg, log)

	adapterReg := adapter.NewRegistry()
	adapterReg.Register(snmpadapter.TypeName, snmpadapter.New)
	adapterReg.Register(restadapter.TypeName, restadapter.New)

	manager := adapter.NewManager(adapterReg, store.Apply, log)
	runners := manager.Load(cfg.Devices)

	overrides := crosspoint.NewOverrides(cfg.OverridesFile, log)
	control := nmos.NewControlClient(time.Duration(cfg.Server.ControlTimeout), log)

	orch := crosspoint.New(store, syncReg, control, overrides, crosspoint.Config{
		BackoffBase: time.Duration(cfg.Server.RetryBackoffBase),
		BackoffMax:  time.Duration(cfg.Server.RetryBackoffMax),
	}, log)

	disp := dispatch.NewDispatcher(log)
	registerRoutes(disp, orch, manager)

	server := session.NewServer(cfg.Server, cfg.Users, syncReg, disp, log)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return orch.Run(ctx) })
	g.Go(func() error { return server.Run(ctx) })

	for _, client := range registryClients {
		c := client

		g.Go(func() error { return c.Run(ctx) })
	}

	for _, runner := range runners {
		r := runner

		g.Go(func() error { return r.Run(ctx) })
	}

	log.Info().
		Int("registries", len(registryClients)).
		Int("devices", len(runners)).
		Str("listen_addr", cfg.Server.ListenAddr).
		Msg("Crosspoint router started")

	return g.Wait()
}

func registerSyncObjects(syncReg *syncobj.Registry, cfg *models.CoreConfig, log logger.Logger) error {
	for name, perm := range models.SyncObjectPermissions {
		var initial interface{}

		if name == models.SyncUIConfig {
			initial = loadUIConfig(cfg.UIConfigFile, log)
		}

		if err := syncReg.Register(name, perm, initial); err != nil {
			return err
		}
	}

	return nil
}

// loadUIConfig reads the operator UI settings document, served verbatim to
// clients as the public uiconfig object.
func loadUIConfig(path string, log logger.Logger) interface{} {
	if path == "" {
		return map[string]interface{}{}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Could not read UI config, serving empty document")
		return map[string]interface{}{}
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Could not parse UI config, serving empty document")
		return map[string]interface{}{}
	}

	return doc
}

// buildRegistryClients wires one query API client per configured registry and
// funnels their health into the registrystatus sync object.
func buildRegistryClients(cfg *models.CoreConfig, store *topology.Store, syncReg *syncobj.Registry, log logger.Logger) []*nmos.RegistryClient {
	var statusMu sync.Mutex

	statuses := make(map[string]models.RegistryStatus, len(cfg.Registries))

	statusFn := func(st models.RegistryStatus) {
		statusMu.Lock()
		statuses[st.ID] = st
		snapshot := make(map[string]models.RegistryStatus, len(statuses))

		for id, s := range statuses {
			snapshot[id] = s
		}
		statusMu.Unlock()

		_ = syncReg.Publish(models.SyncRegistryStatus, func(interface{}) interface{} {
			return snapshot
		})
	}

	clients := make([]*nmos.RegistryClient, 0, len(cfg.Registries))
	for _, rc := range cfg.Registries {
		clients = append(clients, nmos.NewRegistryClient(rc, store.Apply, statusFn, log))
	}

	return clients
}
