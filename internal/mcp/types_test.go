package mcp

import "testing"

func TestServerConfigValidateRequiresID(t *testing.T) {
	cfg := &ServerConfig{Transport: TransportStdio, Command: "echo"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing ID")
	}
}

func TestServerConfigValidateStdioRequiresCommand(t *testing.T) {
	cfg := &ServerConfig{ID: "s1", Transport: TransportStdio}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing command")
	}
}

func TestServerConfigValidateRejectsPathTraversal(t *testing.T) {
	cfg := &ServerConfig{ID: "s1", Transport: TransportStdio, Command: "../../bin/sh"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for path traversal in command")
	}
}

func TestServerConfigValidateRejectsShellMetacharsInArgs(t *testing.T) {
	cfg := &ServerConfig{ID: "s1", Transport: TransportStdio, Command: "node", Args: []string{"server.js; rm -rf /"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for shell metacharacters in args")
	}
}

func TestServerConfigValidateHTTPRequiresURL(t *testing.T) {
	cfg := &ServerConfig{ID: "s1", Transport: TransportStreamableHTTP}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing URL")
	}
}

func TestServerConfigValidateHTTPRejectsNonHTTPScheme(t *testing.T) {
	cfg := &ServerConfig{ID: "s1", Transport: TransportSSE, URL: "ftp://example.com"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-http(s) scheme")
	}
}

func TestServerConfigValidateAcceptsValidStdio(t *testing.T) {
	cfg := &ServerConfig{ID: "s1", Transport: TransportStdio, Command: "node", Args: []string{"server.js"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestServerConfigValidateUnknownTransport(t *testing.T) {
	cfg := &ServerConfig{ID: "s1", Transport: "carrier-pigeon"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown transport")
	}
}
