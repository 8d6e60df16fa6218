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

package session

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/dispatch"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/logger"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/syncobj"
)

const defaultShutdownGrace = 5 * time.Second

// Server accepts client websocket connections and runs one Session per
// connection.
type Server struct {
	cfg      models.ServerConfig
	users    []models.UserConfig
	sync     *syncobj.Registry
	disp     *dispatch.Dispatcher
	logger   logger.Logger
	upgrader websocket.Upgrader
	router   *mux.Router
}

// NewServer wires the websocket endpoint.
func NewServer(cfg models.ServerConfig, users []models.UserConfig, syncReg *syncobj.Registry, disp *dispatch.Dispatcher, log logger.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		users:  users,
		sync:   syncReg,
		disp:   disp,
		logger: log.WithComponent("session-server"),
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     s.checkOrigin,
	}

	s.router = mux.NewRouter()
	s.router.HandleFunc("/ws", s.handleWS)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	return s
}

// Router exposes the HTTP routes, mainly for tests.
func (s *Server) Router() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info().Str("addr", s.cfg.ListenAddr).Msg("Client endpoint listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	grace := time.Duration(s.cfg.ShutdownGrace)
	if grace == 0 {
		grace = defaultShutdownGrace
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Str("origin", r.Header.Get("Origin")).
			Msg("Websocket upgrade failed")

		return
	}

	sess := newSession(conn, s.cfg, s.users, s.sync, s.disp, s.logger)

	s.logger.Info().
		Str("remote_addr", r.RemoteAddr).
		Str("session_id", sess.ID()).
		Msg("Client connected")

	sess.run(r.Context())

	s.logger.Info().
		Str("remote_addr", r.RemoteAddr).
		Str("session_id", sess.ID()).
		Msg("Client disconnected")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// checkOrigin allows same-host clients and anything on the configured
// allow-list. An empty Origin header (non-browser client) is accepted.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	if strings.EqualFold(parsed.Host, r.Host) {
		return true
	}

	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, parsed.Host) {
			return true
		}
	}

	s.logger.Warn().Str("origin", origin).Msg("Rejected websocket origin")

	return false
}
