// Copyright 2026 The Drillstream Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"strings"
	"testing"
	"time"
)

func TestParseAppliesDefaults(t *testing.T) {
	t.Parallel()
	loaded, err := Parse([]byte("chunk_db:\n  path: /var/drillstream/chunks.db\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if loaded.ListenAddress != ":9841" {
		t.Errorf("ListenAddress: got %q, want %q", loaded.ListenAddress, ":9841")
	}
	if loaded.MaxMessageInterval != time.Second {
		t.Errorf("MaxMessageInterval: got %s, want 1s", loaded.MaxMessageInterval)
	}
	if loaded.GrowingTimeout != 5*time.Minute {
		t.Errorf("GrowingTimeout: got %s, want 5m", loaded.GrowingTimeout)
	}
	if loaded.MaxResponseCount != 1000 {
		t.Errorf("MaxResponseCount: got %d, want 1000", loaded.MaxResponseCount)
	}
	if loaded.LogLevel != "info" {
		t.Errorf("LogLevel: got %q, want info", loaded.LogLevel)
	}
}

func TestParseOverrides(t *testing.T) {
	t.Parallel()
	loaded, err := Parse([]byte(strings.Join([]string{
		`listen_address: "127.0.0.1:7000"`,
		`chunk_db:`,
		`  path: chunks.db`,
		`  pool_size: 4`,
		`streaming:`,
		`  max_message_interval: 250ms`,
		`  growing_timeout: 90s`,
		`discovery:`,
		`  max_response_count: 50`,
		`log_level: debug`,
	}, "\n")))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if loaded.ListenAddress != "127.0.0.1:7000" {
		t.Errorf("ListenAddress: got %q", loaded.ListenAddress)
	}
	if loaded.MaxMessageInterval != 250*time.Millisecond {
		t.Errorf("MaxMessageInterval: got %s, want 250ms", loaded.MaxMessageInterval)
	}
	if loaded.GrowingTimeout != 90*time.Second {
		t.Errorf("GrowingTimeout: got %s, want 90s", loaded.GrowingTimeout)
	}
	if loaded.ChunkDBPoolSize != 4 {
		t.Errorf("ChunkDBPoolSize: got %d, want 4", loaded.ChunkDBPoolSize)
	}
	if loaded.MaxResponseCount != 50 {
		t.Errorf("MaxResponseCount: got %d, want 50", loaded.MaxResponseCount)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		yaml string
	}{
		{"missing chunk path", "listen_address: \":9841\"\n"},
		{"bad log level", "chunk_db:\n  path: x.db\nlog_level: verbose\n"},
		{"bad interval", "chunk_db:\n  path: x.db\nstreaming:\n  max_message_interval: often\n"},
		{"zero interval", "chunk_db:\n  path: x.db\nstreaming:\n  max_message_interval: 0s\n"},
		{"zero cap", "chunk_db:\n  path: x.db\ndiscovery:\n  max_response_count: 0\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Parse([]byte(tc.yaml)); err == nil {
				t.Errorf("Parse accepted invalid config %q", tc.name)
			}
		})
	}
}
