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

package config

import (
	"context"
	"errors"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/logger"
	"github.com/avassdal/nmos-crosspoint-registry-router/pkg/models"
)

var (
	// ErrDstMustBeNonNilPointer indicates that the destination must be a non-nil pointer.
	ErrDstMustBeNonNilPointer = errors.New("dst must be a non-nil pointer")
	// ErrDstMustBePointerToStruct indicates that the destination must be a pointer to a struct.
	ErrDstMustBePointerToStruct = errors.New("dst must be a pointer to a struct")
)

// EnvLoader overlays configuration from environment variables. Nested struct
// fields map through underscore separation: CROSSPOINT_SERVER_LISTEN_ADDR
// sets Server.ListenAddr.
type EnvLoader struct {
	logger logger.Logger
	prefix string
}

// NewEnvLoader creates an environment variable overlay with the given prefix.
func NewEnvLoader(log logger.Logger, prefix string) *EnvLoader {
	return &EnvLoader{logger: log, prefix: prefix}
}

// Load implements Loader by walking dst and applying any matching variables.
func (e *EnvLoader) Load(_ context.Context, _ string, dst interface{}) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return ErrDstMustBeNonNilPointer
	}

	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return ErrDstMustBePointerToStruct
	}

	e.walk(v, e.prefix)

	return nil
}

func (e *EnvLoader) walk(v reflect.Value, prefix string) {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" { // unexported
			continue
		}

		fv := v.Field(i)
		name := prefix + toEnvName(field.Name)

		if fv.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			e.walk(fv, name+"_")
			continue
		}

		raw, ok := os.LookupEnv(name)
		if !ok {
			continue
		}

		if e.set(fv, raw) && e.logger != nil {
			e.logger.Debug().Str("var", name).Msg("Applied environment override")
		}
	}
}

func (e *EnvLoader) set(fv reflect.Value, raw string) bool {
	if !fv.CanSet() {
		return false
	}

	if fv.Type() == reflect.TypeOf(models.Duration(0)) {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return false
		}

		fv.Set(reflect.ValueOf(models.Duration(d)))

		return true
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return false
		}

		fv.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return false
		}

		fv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return false
		}

		fv.SetUint(n)
	default:
		return false
	}

	return true
}

// toEnvName converts CamelCase field names to SCREAMING_SNAKE.
func toEnvName(name string) string {
	var b strings.Builder

	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := rune(name[i-1])
			if prev < 'A' || prev > 'Z' {
				b.WriteByte('_')
			}
		}

		b.WriteRune(r)
	}

	return strings.ToUpper(b.String())
}
