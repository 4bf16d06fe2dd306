// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldComponent      = "component"
	FieldEvent          = "event"
	FieldConnectionName = "connection_name"

	// Network fields
	FieldHost     = "host"
	FieldPort     = "port"
	FieldAddr     = "addr"
	FieldTopology = "topology"

	// Command fields
	FieldCommand   = "command"
	FieldBatchSize = "batch_size"
	FieldDuration  = "duration_ms"
)
