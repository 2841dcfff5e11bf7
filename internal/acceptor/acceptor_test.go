package acceptor

import (
	"testing"

	"github.com/akz4ol/histgate/internal/config"
)

func TestLoadTLSConfigNoCertConfigured(t *testing.T) {
	cfg := &config.ServerConfig{}
	tlsCfg, err := LoadTLSConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tlsCfg != nil {
		t.Fatal("expected a nil TLS config when no certificate is configured")
	}
}

func TestLoadTLSConfigMissingCertFile(t *testing.T) {
	cfg := &config.ServerConfig{
		TLSCertFile: "/nonexistent/cert.pem",
		TLSKeyFile:  "/nonexistent/key.pem",
	}
	if _, err := LoadTLSConfig(cfg); err == nil {
		t.Fatal("expected an error loading a nonexistent certificate pair")
	}
}

func TestLoadTLSConfigMissingCAFile(t *testing.T) {
	cfg := &config.ServerConfig{
		TLSCertFile: "/nonexistent/cert.pem",
		TLSKeyFile:  "/nonexistent/key.pem",
		TLSCAFile:   "/nonexistent/ca.pem",
	}
	if _, err := LoadTLSConfig(cfg); err == nil {
		t.Fatal("expected an error before the CA file is even reached")
	}
}
