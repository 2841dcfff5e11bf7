// Package acceptor owns the TCP listener that accepts PostgreSQL wire
// protocol connections and hands each one to internal/connfsm. It mirrors
// internal/server's signal-driven start/shutdown shape, adapted from HTTP's
// request-per-call model to one long-lived goroutine per connection.
package acceptor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"

	"github.com/akz4ol/histgate/internal/config"
	"github.com/akz4ol/histgate/internal/connfsm"
)

// Acceptor owns the raw net.Listener and tracks in-flight connections so
// Shutdown can wait for them to drain.
type Acceptor struct {
	cfg      *config.ServerConfig
	connFSM  *connfsm.Server
	logger   zerolog.Logger
	listener net.Listener

	wg sync.WaitGroup
}

// New builds an Acceptor. It does not start listening; call Start.
func New(cfg *config.ServerConfig, connFSM *connfsm.Server, logger zerolog.Logger) *Acceptor {
	return &Acceptor{cfg: cfg, connFSM: connFSM, logger: logger}
}

// LoadTLSConfig builds a *tls.Config from the server config's certificate
// paths, or returns nil if no certificate is configured (plaintext-only, a
// declined SSLRequest on every connection). Grounded in the same
// cert/key/CA/mTLS fields the HTTP server config already carries.
func LoadTLSConfig(cfg *config.ServerConfig) (*tls.Config, error) {
	if cfg.TLSCertFile == "" || cfg.TLSKeyFile == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
	if err != nil {
		return nil, fmt.Errorf("loading TLS certificate: %w", err)
	}
	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}

	if cfg.TLSCAFile != "" {
		caPEM, err := os.ReadFile(cfg.TLSCAFile)
		if err != nil {
			return nil, fmt.Errorf("reading TLS CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no certificates parsed from %s", cfg.TLSCAFile)
		}
		tlsCfg.ClientCAs = pool
		if cfg.RequireClientCert {
			tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
		} else {
			tlsCfg.ClientAuth = tls.VerifyClientCertIfGiven
		}
	}
	return tlsCfg, nil
}

// Start binds the listener and accepts connections until ctx is cancelled.
// It blocks the calling goroutine; callers run it in its own goroutine and
// cancel ctx to trigger an orderly shutdown.
func (a *Acceptor) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", a.cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", a.cfg.BindAddr, err)
	}
	a.listener = ln
	a.logger.Info().Str("addr", a.cfg.BindAddr).Msg("wire protocol listener started")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				a.wg.Wait()
				a.logger.Info().Msg("wire protocol listener stopped")
				return nil
			default:
				a.logger.Warn().Err(err).Msg("accept failed")
				continue
			}
		}

		a.wg.Add(1)
		go a.serve(ctx, conn)
	}
}

// serve runs one connection to completion, recovering from any panic inside
// connfsm the same way the HTTP middleware stack recovers from handler
// panics, so one malformed connection never takes the listener down.
func (a *Acceptor) serve(ctx context.Context, conn net.Conn) {
	defer a.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Str("peer", conn.RemoteAddr().String()).
				Msg("panic recovered in connection handler")
			_ = conn.Close()
		}
	}()
	a.connFSM.HandleConnection(ctx, conn)
}

// Shutdown closes the listener and waits, until ctx expires, for in-flight
// connections to finish. Connections are not force-closed: they end when
// the client disconnects. Start's Accept loop returns only once the context
// passed to Start has been cancelled.
func (a *Acceptor) Shutdown(ctx context.Context) error {
	if a.listener == nil {
		return nil
	}
	if err := a.listener.Close(); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
