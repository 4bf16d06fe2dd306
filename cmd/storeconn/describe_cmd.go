// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/ManuGH/storeconn/internal/redisconn"
	"github.com/google/renameio/v2"
)

// handleDescription is what describe prints per connection. Passwords are
// reported only as present or absent.
type handleDescription struct {
	Name           string   `json:"name"`
	Topology       string   `json:"topology"`
	Nodes          []string `json:"nodes"`
	TLS            bool     `json:"tls"`
	AutoPipelining bool     `json:"autoPipelining"`
	KeyPrefix      string   `json:"keyPrefix,omitempty"`
	ScaleReads     string   `json:"scaleReads,omitempty"`
	Username       string   `json:"username,omitempty"`
	PasswordSet    bool     `json:"passwordSet"`
}

func describeHandle(name string, h redisconn.Handle) handleDescription {
	d := handleDescription{
		Name:           name,
		Topology:       h.Topology().String(),
		TLS:            h.TLSEnabled(),
		AutoPipelining: h.AutoPipelining(),
	}
	switch v := h.(type) {
	case *redisconn.StandaloneHandle:
		n := v.Node()
		d.Nodes = []string{nodeAddr(n)}
		d.Username = v.Options().Username
		d.PasswordSet = v.Options().Password != ""
	case *redisconn.ClusterHandle:
		for _, n := range v.Seeds() {
			d.Nodes = append(d.Nodes, nodeAddr(n))
		}
		merged := v.MergedOptions()
		d.KeyPrefix = merged.NodeOptions.KeyPrefix
		d.ScaleReads = string(merged.ScaleReads)
		d.Username = merged.NodeOptions.Username
		d.PasswordSet = merged.NodeOptions.Password != ""
	}
	return d
}

func nodeAddr(n redisconn.Node) string {
	port := ""
	if n.Port != 0 {
		port = strconv.Itoa(n.Port)
	}
	return net.JoinHostPort(n.Host, port)
}

func runDescribeCLI(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("describe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	outPath := fs.String("out", "", "write the description to this file instead of stdout")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(common.configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	names, err := selectConnections(cfg, common.connections)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	handles, err := openHandles(redisconn.NewFactory(), cfg, names)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer closeHandles(handles)

	out := make([]handleDescription, 0, len(handles))
	for _, h := range handles {
		out = append(out, describeHandle(h.name, h.handle))
	}

	if *outPath != "" {
		if err := writeDescriptionFile(*outPath, out); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}
	if err := encodeDescriptions(stdout, out); err != nil {
		fmt.Fprintf(stderr, "Error encoding output: %v\n", err)
		return 1
	}
	return 0
}

func encodeDescriptions(w io.Writer, out []handleDescription) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// writeDescriptionFile replaces path atomically so readers never see a
// partial document.
func writeDescriptionFile(path string, out []handleDescription) error {
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		_ = pending.Cleanup()
	}()

	if err := encodeDescriptions(pending, out); err != nil {
		return fmt.Errorf("encode description: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
