// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads cmd/dispatcher's top-level JSON config file and
// applies the .env / environment variable overrides documented in
// spec.md §6: read the file if present, validate, decode over a
// defaulted struct, then let a handful of environment variables win.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	cclog "github.com/SeisBlue/EEW-WebUI/pkg/log"
)

// ProgramConfig is the top-level shape of cmd/dispatcher's config file.
type ProgramConfig struct {
	// Addr is where the HTTP server (WebSocket upgrade, /healthz,
	// /metrics, /debug/stations) listens, e.g. ":8080".
	Addr string `json:"addr"`

	RedisHost     string `json:"redis-host"`
	RedisPort     int    `json:"redis-port"`
	RedisDB       int    `json:"redis-db"`
	RedisPassword string `json:"redis-password"`

	// EnableGops starts a github.com/google/gops/agent listener for live
	// process introspection (spec.md §6 ambient addition).
	EnableGops bool `json:"gops"`

	// Dispatcher is handed to dispatcherconfig.Init verbatim.
	Dispatcher json.RawMessage `json:"dispatcher"`
}

// Keys is populated by Init and read-only afterwards.
var Keys = ProgramConfig{
	Addr:      ":8080",
	RedisHost: "localhost",
	RedisPort: 6379,
	RedisDB:   0,
}

const topLevelSchema = `{
	"type": "object",
	"properties": {
		"addr": {"type": "string"},
		"redis-host": {"type": "string"},
		"redis-port": {"type": "integer"},
		"redis-db": {"type": "integer"},
		"redis-password": {"type": "string"},
		"gops": {"type": "boolean"},
		"dispatcher": {"type": "object"}
	}
}`

// Init loads ./.env (if present), reads flagConfigFile (if present),
// validates and decodes it over Keys, then applies REDIS_HOST / REDIS_PORT
// / REDIS_DB / DISPATCHER_ADDR environment overrides so a container
// deployment never needs a config file at all (spec.md §6).
func Init(flagConfigFile string) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		cclog.Warnf("config: parsing .env failed: %s", err.Error())
	}

	if raw, err := os.ReadFile(flagConfigFile); err != nil {
		if !os.IsNotExist(err) {
			cclog.Fatal(err)
		}
	} else {
		Validate(topLevelSchema, raw)
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&Keys); err != nil {
			cclog.Fatal(err)
		}
	}

	applyEnvOverrides()
}

func applyEnvOverrides() {
	if v := os.Getenv("REDIS_HOST"); v != "" {
		Keys.RedisHost = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			Keys.RedisPort = n
		} else {
			cclog.Warnf("config: ignoring unparsable REDIS_PORT %q", v)
		}
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			Keys.RedisDB = n
		} else {
			cclog.Warnf("config: ignoring unparsable REDIS_DB %q", v)
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		Keys.RedisPassword = v
	}
	if v := os.Getenv("DISPATCHER_ADDR"); v != "" {
		Keys.Addr = v
	}
}
