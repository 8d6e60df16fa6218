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

// Package session manages authenticated client websocket connections: the
// challenge/response handshake, sync object subscriptions, request dispatch,
// and keep-alive supervision.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/dispatch"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/logger"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/syncobj"
)

// errSessionClosed is returned by SendSync once the session is gone so the
// sync registry drops the subscription.
var errSessionClosed = errors.New("session closed")

// Session is one client connection. All outbound frames funnel through a
// bounded queue drained by a single writer goroutine; a full queue destroys
// the session rather than blocking publishers.
type Session struct {
	id     string
	conn   *websocket.Conn
	cfg    models.ServerConfig
	users  []models.UserConfig
	sync   *syncobj.Registry
	disp   *dispatch.Dispatcher
	logger logger.Logger

	out   chan interface{}
	pongs chan struct{}
	done  chan struct{}
	once  sync.Once

	mu         sync.Mutex
	user       string
	permission models.PermissionClass
	seed       string
	seedIssued time.Time

	missedPings int // writer goroutine only
}

func newSession(conn *websocket.Conn, cfg models.ServerConfig, users []models.UserConfig, syncReg *syncobj.Registry, disp *dispatch.Dispatcher, log logger.Logger) *Session {
	s := &Session{
		id:         uuid.NewString(),
		conn:       conn,
		cfg:        cfg,
		users:      users,
		sync:       syncReg,
		disp:       disp,
		out:        make(chan interface{}, cfg.SendQueueLength),
		pongs:      make(chan struct{}, 1),
		done:       make(chan struct{}),
		permission: models.PermissionPublic,
	}
	s.logger = log.WithComponent("session:" + s.id[:8])

	// With no users configured every session is trusted immediately.
	if len(users) == 0 {
		s.permission = models.PermissionGlobal
	}

	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Permission implements syncobj.Subscriber.
func (s *Session) Permission() models.PermissionClass {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.permission
}

// SendSync implements syncobj.Subscriber. Called with the sync object's lock
// held, so it must never block: a full queue is a dead or stalled client.
func (s *Session) SendSync(msg *models.SyncMessage) error {
	return s.send(msg)
}

func (s *Session) send(msg interface{}) error {
	select {
	case <-s.done:
		return errSessionClosed
	default:
	}

	select {
	case s.out <- msg:
		return nil
	default:
		// The caller may be a publisher holding a sync object's lock, and
		// destroy re-enters the registry to unsubscribe. Tear down off this
		// goroutine; the error return already drops the subscription that
		// delivered here.
		s.logger.Warn().Msg("Send queue full, destroying session")
		go s.destroy()

		return errSessionClosed
	}
}

// run services the connection until the client goes away or ctx ends.
func (s *Session) run(ctx context.Context) {
	defer s.destroy()

	go s.writeLoop(ctx)

	if len(s.users) > 0 {
		if err := s.issueSeed(); err != nil {
			s.logger.Error().Err(err).Msg("Could not issue auth seed")
			return
		}
	}

	for {
		var env models.Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug().Err(err).Msg("Session read failed")
			}

			return
		}

		switch env.Type {
		case models.MsgAuth:
			s.handleAuth(&env)
		case models.MsgSync:
			s.handleSubscribe(&env)
		case models.MsgRequest:
			s.handleRequest(ctx, &env)
		case models.MsgPing:
			_ = s.send(&models.PingMessage{Type: models.MsgPong})
		case models.MsgPong:
			s.notePong()
		default:
			s.logger.Debug().Str("type", env.Type).Msg("Ignoring unknown frame type")
		}

		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		default:
		}
	}
}

// writeLoop is the only goroutine writing to the connection. It also owns
// the keep-alive: a ping every interval, and destruction after the limit of
// unanswered pings.
func (s *Session) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.cfg.PingInterval))
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			s.destroy()
			return
		case msg := <-s.out:
			if err := s.conn.WriteJSON(msg); err != nil {
				s.logger.Debug().Err(err).Msg("Session write failed")
				s.destroy()

				return
			}
		case <-ticker.C:
			// The counter increments one tick ahead of the ping it times:
			// it reaches 1 on the tick that sends the first ping, so it
			// exceeds the limit only after limit pings have gone unanswered.
			s.missedPings++
			if s.missedPings > s.cfg.MissedPingLimit {
				s.logger.Info().Msg("Client stopped answering pings, destroying session")
				s.destroy()

				return
			}

			if err := s.conn.WriteJSON(&models.PingMessage{Type: models.MsgPing}); err != nil {
				s.destroy()
				return
			}
		case <-s.pongs:
			s.missedPings = 0
		}
	}
}

func (s *Session) handleAuth(env *models.Envelope) {
	s.mu.Lock()
	seed := s.seed
	issued := s.seedIssued
	s.seed = "" // single use
	s.mu.Unlock()

	if len(s.users) == 0 {
		_ = s.send(&models.AuthResultMessage{Type: models.MsgAuthOK})
		return
	}

	if seed == "" {
		_ = s.send(&models.AuthResultMessage{Type: models.MsgAuthError, Message: "no auth seed outstanding"})
		_ = s.issueSeed()

		return
	}

	if time.Since(issued) > time.Duration(s.cfg.AuthTimeout) {
		_ = s.send(&models.AuthResultMessage{Type: models.MsgAuthError, Message: "auth seed expired"})
		_ = s.issueSeed()

		return
	}

	for _, user := range s.users {
		if user.Name != env.User {
			continue
		}

		if verifyCredential(user.Password, seed, env.Password) {
			s.mu.Lock()
			s.user = user.Name
			s.permission = models.PermissionGlobal
			s.mu.Unlock()

			s.logger.Info().Str("user", user.Name).Msg("Session authenticated")
			_ = s.send(&models.AuthResultMessage{Type: models.MsgAuthOK})

			return
		}

		break
	}

	// Failed attempts leave the session public with a fresh seed.
	s.logger.Info().Str("user", env.User).Msg("Authentication failed")
	_ = s.send(&models.AuthResultMessage{Type: models.MsgAuthFailed, Message: "invalid credentials"})
	_ = s.issueSeed()
}

func (s *Session) issueSeed() error {
	seed, err := newSeed()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.seed = seed
	s.seedIssued = time.Now()
	s.mu.Unlock()

	return s.send(&models.AuthSeedMessage{Type: models.MsgAuthSeed, Seed: seed})
}

func (s *Session) notePong() {
	select {
	case s.pongs <- struct{}{}:
	default:
	}
}

func (s *Session) handleSubscribe(env *models.Envelope) {
	if err := s.sync.Subscribe(env.Channel, env.ObjectID, s); err != nil {
		if errors.Is(err, syncobj.ErrPermissionDenied) {
			_ = s.send(&models.ResponseMessage{
				Type:    models.MsgPermissionDenied,
				ID:      env.ID,
				Message: err.Error(),
			})

			return
		}

		_ = s.send(&models.ResponseMessage{Type: models.MsgResponse, ID: env.ID, Message: err.Error()})
	}
}

func (s *Session) handleRequest(ctx context.Context, env *models.Envelope) {
	s.mu.Lock()
	caller := dispatch.Caller{User: s.user, Permission: s.permission}
	s.mu.Unlock()

	resp := s.disp.Dispatch(ctx, caller, env)
	_ = s.send(&resp)
}

func (s *Session) destroy() {
	s.once.Do(func() {
		close(s.done)
		s.sync.Unsubscribe(s)
		_ = s.conn.Close()
		s.logger.Debug().Msg("Session destroyed")
	})
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.done }
