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
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const seedBytes = 16

// newSeed produces one random challenge seed. Each seed is valid for a
// single authentication attempt.
func newSeed() (string, error) {
	buf := make([]byte, seedBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating auth seed: %w", err)
	}

	return hex.EncodeToString(buf), nil
}

// HashCredential computes the challenge response a client must present:
// hex(sha256(password + seed)). Exported for client implementations and
// tests.
func HashCredential(password, seed string) string {
	sum := sha256.Sum256([]byte(password + seed))
	return hex.EncodeToString(sum[:])
}

// verifyCredential compares the presented response in constant time.
func verifyCredential(password, seed, presented string) bool {
	expected := HashCredential(password, seed)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}
