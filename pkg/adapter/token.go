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

package adapter

import (
	"context"
	"net/http"
	"sync"
)

// AuthFunc obtains a fresh session token from the device.
type AuthFunc func(ctx context.Context) (string, error)

// RequestFunc builds the request with the given token applied.
type RequestFunc func(token string) (*http.Request, error)

// TokenClient wraps an http.Client for adapters whose devices require
// session tokens. On an authorization failure it transparently
// re-authenticates and retries the original request exactly once before
// surfacing the error.
type TokenClient struct {
	HTTP *http.Client
	Auth AuthFunc

	mu    sync.Mutex
	token string
}

// Do executes the request, re-authenticating once on 401/403.
func (t *TokenClient) Do(ctx context.Context, build RequestFunc) (*http.Response, error) {
	token, err := t.currentToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := t.send(build, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		return resp, nil
	}

	resp.Body.Close()

	token, err = t.refreshToken(ctx)
	if err != nil {
		return nil, err
	}

	return t.send(build, token)
}

func (t *TokenClient) send(build RequestFunc, token string) (*http.Response, error) {
	req, err := build(token)
	if err != nil {
		return nil, err
	}

	client := t.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	return client.Do(req)
}

func (t *TokenClient) currentToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" {
		return t.token, nil
	}

	token, err := t.Auth(ctx)
	if err != nil {
		return "", err
	}

	t.token = token

	return token, nil
}

func (t *TokenClient) refreshToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	token, err := t.Auth(ctx)
	if err != nil {
		return "", err
	}

	t.token = token

	return token, nil
}
