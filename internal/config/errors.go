// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownConfigField classifies strict YAML parse failures caused by unknown keys.
	// Use errors.Is(err, ErrUnknownConfigField) instead of string matching.
	ErrUnknownConfigField = errors.New("unknown config field")

	// ErrUnknownConnection is returned when a connection name is not configured.
	ErrUnknownConnection = errors.New("unknown connection")

	// ErrEnvPrefixCollision is returned when two connection names map to the
	// same environment prefix.
	ErrEnvPrefixCollision = errors.New("connection env prefix collision")
)

// ConnectionError names the connection that could not be resolved.
type ConnectionError struct {
	Name string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %q is not configured", e.Name)
}

func (e *ConnectionError) Unwrap() error {
	return ErrUnknownConnection
}

// EnvPrefixError names the connections that share an environment prefix.
type EnvPrefixError struct {
	Prefix string
	Names  [2]string
}

func (e *EnvPrefixError) Error() string {
	return fmt.Sprintf("connections %q and %q share env prefix %s", e.Names[0], e.Names[1], e.Prefix)
}

func (e *EnvPrefixError) Unwrap() error {
	return ErrEnvPrefixCollision
}
