// Copyright (C) 2025 KnowledgeSavvy
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package enforcement bakes the egress rule definitions into the compiled
binary with the Go embed package, so the rules are immutable at runtime
and travel with the executable.
*/
package enforcement

import (
	_ "embed"
)

// EgressRules holds the raw byte content of the 'egress_rules.yaml' file.
//
// Populated at compile time via the 'embed' directive. Baking the YAML into
// the binary means the rules cannot be tampered with on the host filesystem
// without recompiling the application.
//
// Usage:
//
//	err := yaml.Unmarshal(enforcement.EgressRules, &targetStruct)
//
//go:embed egress_rules.yaml
var EgressRules []byte
