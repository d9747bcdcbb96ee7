// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"

	cclog "github.com/SeisBlue/EEW-WebUI/pkg/log"
)

// Validate compiles schema and checks instance against it, aborting the
// process on any failure. Config errors are not recoverable: a dispatcher
// running with a half-validated config is worse than one that never starts.
func Validate(schema string, instance json.RawMessage) {
	sch, err := jsonschema.CompileString("schema.json", schema)
	if err != nil {
		cclog.Fatalf("config: compiling schema: %#v", err)
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		cclog.Fatal(err)
	}

	if err := sch.Validate(v); err != nil {
		cclog.Fatalf("config: %#v", err)
	}
}
