// Package connfsm is the per-connection state machine (spec §4.2): startup,
// TLS negotiation, authentication, and the Simple and Extended query
// sub-FSMs, wired over internal/wire, internal/authn, internal/planner,
// internal/fetch, internal/engine, internal/catalog and internal/session.
// One instance runs per accepted TCP connection; it exclusively owns the
// socket, the prepared-statement map, and the portal map for that
// connection.
package connfsm

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/rs/zerolog"

	"github.com/akz4ol/histgate/internal/authn"
	"github.com/akz4ol/histgate/internal/catalog"
	"github.com/akz4ol/histgate/internal/columnar"
	"github.com/akz4ol/histgate/internal/config"
	"github.com/akz4ol/histgate/internal/fetch"
	"github.com/akz4ol/histgate/internal/keepalive"
	"github.com/akz4ol/histgate/internal/pgerr"
	"github.com/akz4ol/histgate/internal/session"
	"github.com/akz4ol/histgate/internal/telemetry"
	"github.com/akz4ol/histgate/internal/wire"
)

// serverVersion is advertised in the startup ParameterStatus sequence; the
// gateway claims a recent PostgreSQL protocol-compatible version since it
// speaks nothing client drivers would recognise as older or newer behaviour.
const serverVersion = "14.9 (histgate)"

// Server holds everything shared across every connection: the session
// registry, the remote-fetch pattern cache, the external catalog and the
// gateway's configuration. Server itself holds no per-connection state.
type Server struct {
	cfg             *config.Config
	sessions        *session.Manager
	cache           *fetch.PatternCache
	externalCatalog *catalog.ExternalCatalog
	tlsConfig       *tls.Config
	telemetry       *telemetry.Telemetry
	logger          zerolog.Logger

	nextPID uint32
}

// NewServer builds a Server. tlsConfig is nil when the gateway does not
// offer TLS (spec §4.2: a plain 'N' SSLRequest reply in that case). tel may
// be nil, in which case query metrics and spans are skipped.
func NewServer(cfg *config.Config, sessions *session.Manager, cache *fetch.PatternCache, externalCatalog *catalog.ExternalCatalog, tlsConfig *tls.Config, tel *telemetry.Telemetry, logger zerolog.Logger) *Server {
	return &Server{
		cfg:             cfg,
		sessions:        sessions,
		cache:           cache,
		externalCatalog: externalCatalog,
		tlsConfig:       tlsConfig,
		telemetry:       tel,
		logger:          logger,
	}
}

// conn is the live state of one accepted connection: the socket, its
// pgproto3 backend codec, the authenticated session handle, the connection
// registry record, and the extended-query protocol's statement/portal maps.
type conn struct {
	server *Server
	raw    net.Conn
	be     *pgproto3.Backend
	logger zerolog.Logger

	pid       uint32
	secretKey uint32

	handle *session.Handle
	record *session.ConnectionRecord

	prepared map[string]*preparedStatement
	portals  map[string]*portal
	aborted  bool
}

// HandleConnection runs one connection to completion. It never returns an
// error to the caller: all failures are logged and the socket is closed, so
// the acceptor's per-connection goroutine can simply call and forget.
func (s *Server) HandleConnection(ctx context.Context, raw net.Conn) {
	defer raw.Close()
	if s.telemetry != nil {
		s.telemetry.ConnectionOpened()
		defer s.telemetry.ConnectionClosed()
	}

	pid := atomic.AddUint32(&s.nextPID, 1)
	c := &conn{
		server:   s,
		raw:      raw,
		pid:      pid,
		secretKey: pid ^ 0x5a5a5a5a,
		logger:   s.logger.With().Uint32("pid", pid).Str("peer", raw.RemoteAddr().String()).Logger(),
		prepared: map[string]*preparedStatement{},
		portals:  map[string]*portal{},
	}

	if err := c.handshake(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("connection handshake failed")
		if pe := pgerr.AsError(err); pe.Severity == "FATAL" {
			_ = c.send(wire.ErrorResponse(pe))
		}
		return
	}
	defer c.teardown()

	c.logger.Info().Str("user", c.handle.Username()).Msg("connection ready")
	c.loop(ctx)
}

func (c *conn) teardown() {
	if c.record != nil {
		c.server.sessions.Unregister(c.record.ConnectionID)
	}
	if c.handle != nil {
		c.server.sessions.RemoveSession(c.handle)
	}
}

// send encodes and writes one or more backend messages in a single write
// syscall, matching the buffer-then-write pattern real pgproto3-based
// servers use to avoid a syscall per protocol message.
func (c *conn) send(msgs ...pgproto3.BackendMessage) error {
	var buf []byte
	for _, m := range msgs {
		buf = m.Encode(buf)
	}
	_, err := c.raw.Write(buf)
	return err
}

// handshake negotiates SSL (if requested), reads the StartupMessage, and
// authenticates the client, per spec §4.2 and §4.3.
func (c *conn) handshake(ctx context.Context) error {
	c.be = pgproto3.NewBackend(c.raw, c.raw)

	startup, err := c.be.ReceiveStartupMessage()
	if err != nil {
		return pgerr.Fatal(pgerr.ProtocolViolation, "receiving startup message: %s", err)
	}

	switch msg := startup.(type) {
	case *pgproto3.SSLRequest:
		return c.negotiateTLS(ctx)
	case *pgproto3.CancelRequest:
		c.logger.Debug().Uint32("target_pid", msg.ProcessID).Msg("cancel request received (no-op: queries are not preemptible)")
		return io.EOF
	case *pgproto3.StartupMessage:
		return c.authenticate(ctx, msg)
	default:
		return pgerr.Fatal(pgerr.ProtocolViolation, "unexpected startup message type %T", msg)
	}
}

// negotiateTLS replies 'S' and upgrades the raw connection in place, then
// re-enters handshake to read the StartupMessage the client sends over the
// encrypted channel. A gateway with no certificate configured replies 'N'
// and the client falls back to a plaintext StartupMessage on the same
// handshake call (matches real libpq behaviour).
func (c *conn) negotiateTLS(ctx context.Context) error {
	if c.server.tlsConfig == nil {
		if _, err := c.raw.Write([]byte{'N'}); err != nil {
			return pgerr.Fatal(pgerr.ProtocolViolation, "writing SSL decline: %s", err)
		}
		return c.handshake(ctx)
	}
	if _, err := c.raw.Write([]byte{'S'}); err != nil {
		return pgerr.Fatal(pgerr.ProtocolViolation, "writing SSL accept: %s", err)
	}
	tlsConn := tls.Server(c.raw, c.server.tlsConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return pgerr.Fatal(pgerr.ProtocolViolation, "TLS handshake: %s", err)
	}
	c.raw = tlsConn
	return c.handshake(ctx)
}

// authenticate runs the configured auth sub-FSM (or skips it in no-auth
// mode), then logs in to the historian backend and registers the
// connection (spec §4.2, §4.3, §4.8).
func (c *conn) authenticate(ctx context.Context, startup *pgproto3.StartupMessage) error {
	username := startup.Parameters["user"]
	database := startup.Parameters["database"]
	appName := startup.Parameters["application_name"]

	var password string
	if c.server.cfg.Auth.NoAuthConfigured {
		username = c.server.cfg.Auth.NoAuthUsername
		password = c.server.cfg.Auth.NoAuthPassword
	} else {
		expected := c.expectedPassword(username)
		var err error
		switch c.server.cfg.Auth.Method {
		case "scram-sha-256":
			err = c.runScram(expected)
		default:
			err = c.runMD5(username, expected)
		}
		if err != nil {
			_ = c.send(wire.ErrorResponse(pgerr.New(pgerr.InvalidPassword, "%s", err)))
			return pgerr.Fatal(pgerr.InvalidPassword, "authentication failed for user %q: %s", username, err)
		}
		password = expected
	}

	handle, err := c.server.sessions.Authenticate(ctx, username, password)
	if err != nil {
		_ = c.send(wire.ErrorResponse(pgerr.New(pgerr.InvalidAuthSpec, "backend login failed: %s", err)))
		return pgerr.Fatal(pgerr.InvalidAuthSpec, "backend login failed for user %q: %s", username, err)
	}
	c.handle = handle

	host, portStr, _ := net.SplitHostPort(c.raw.RemoteAddr().String())
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	c.record = c.server.sessions.RegisterConnection(host, port, appName, database, username)

	msgs := []pgproto3.BackendMessage{wire.AuthenticationOk()}
	for _, p := range wire.StartupParameters(serverVersion) {
		msgs = append(msgs, p)
	}
	msgs = append(msgs, wire.BackendKeyData(c.pid, c.secretKey), wire.ReadyForQuery())
	return c.send(msgs...)
}

// expectedPassword resolves the plaintext password the gateway treats as
// correct for username, needed by MD5/SCRAM to verify without the password
// ever crossing the wire (spec §4.3 calls the underlying lookup "a stub set
// in the reference implementation"). The gateway's stub: the configured
// no-auth pair if the username matches it, otherwise the username itself —
// a placeholder identity mapping that production deployments replace with a
// real per-user secret store (see DESIGN.md Open Question).
func (c *conn) expectedPassword(username string) string {
	if c.server.cfg.Auth.NoAuthConfigured && username == c.server.cfg.Auth.NoAuthUsername {
		return c.server.cfg.Auth.NoAuthPassword
	}
	return username
}

func (c *conn) runMD5(username, password string) error {
	salt, err := authn.NewMD5Salt()
	if err != nil {
		return fmt.Errorf("generating salt: %w", err)
	}
	if err := c.send(&pgproto3.AuthenticationMD5Password{Salt: salt}); err != nil {
		return err
	}
	msg, err := c.be.Receive()
	if err != nil {
		return fmt.Errorf("receiving password message: %w", err)
	}
	pm, ok := msg.(*pgproto3.PasswordMessage)
	if !ok {
		return fmt.Errorf("expected PasswordMessage, got %T", msg)
	}
	if !authn.VerifyMD5(username, password, salt, pm.Password) {
		return fmt.Errorf("password does not match")
	}
	return nil
}

func (c *conn) runScram(password string) error {
	if err := c.send(&pgproto3.AuthenticationSASL{AuthMechanisms: []string{"SCRAM-SHA-256"}}); err != nil {
		return err
	}
	msg, err := c.be.Receive()
	if err != nil {
		return fmt.Errorf("receiving SASL initial response: %w", err)
	}
	initial, ok := msg.(*pgproto3.SASLInitialResponse)
	if !ok {
		return fmt.Errorf("expected SASLInitialResponse, got %T", msg)
	}

	srv := authn.NewScramServer(password)
	serverFirst, err := srv.ServerFirst(string(initial.Data))
	if err != nil {
		return err
	}
	if err := c.send(&pgproto3.AuthenticationSASLContinue{Data: []byte(serverFirst)}); err != nil {
		return err
	}

	msg, err = c.be.Receive()
	if err != nil {
		return fmt.Errorf("receiving SASL response: %w", err)
	}
	resp, ok := msg.(*pgproto3.SASLResponse)
	if !ok {
		return fmt.Errorf("expected SASLResponse, got %T", msg)
	}
	serverFinal, err := srv.Verify(string(resp.Data))
	if err != nil {
		return err
	}
	return c.send(&pgproto3.AuthenticationSASLFinal{Data: []byte(serverFinal)})
}

// loop reads and dispatches frontend messages until the client disconnects
// or sends Terminate. It is the Idle state of spec §4.2's state diagram. A
// read deadline doubles as the keep-alive scheduler (spec §4.9): when no
// frontend message arrives within the interval, the loop sends a harmless
// ParameterStatus probe and goes back to waiting, all inline in this one
// goroutine so the connection stays single-threaded from its own
// perspective (spec §5) — no separate prober goroutine ever writes to the
// same socket concurrently with query responses.
func (c *conn) loop(ctx context.Context) {
	interval := c.server.cfg.Server.KeepAliveInterval
	for {
		if interval > 0 {
			_ = c.raw.SetReadDeadline(time.Now().Add(interval))
		}

		msg, err := c.be.Receive()
		if err != nil {
			if keepalive.IsTimeout(err) {
				if probeErr := c.send(wire.ParameterStatus("server_keepalive", "1")); probeErr != nil && keepalive.IsDeadPeer(probeErr) {
					c.logger.Debug().Err(probeErr).Msg("peer gone during keep-alive probe")
					return
				}
				continue
			}
			if err != io.EOF {
				c.logger.Debug().Err(err).Msg("connection closed")
			}
			return
		}

		switch m := msg.(type) {
		case *pgproto3.Query:
			c.handleSimpleQuery(ctx, m.String)
		case *pgproto3.Parse:
			c.handleParse(m)
		case *pgproto3.Bind:
			c.handleBind(m)
		case *pgproto3.Describe:
			c.handleDescribe(ctx, m)
		case *pgproto3.Execute:
			c.handleExecute(ctx, m)
		case *pgproto3.Sync:
			c.handleSync()
		case *pgproto3.Close:
			c.handleClose(m)
		case *pgproto3.FlushMessage:
			// no-op: this gateway writes every response immediately (§4.2, "H").
		case *pgproto3.Terminate:
			return
		default:
			c.logger.Warn().Str("type", fmt.Sprintf("%T", m)).Msg("unsupported frontend message")
			_ = c.send(wire.ErrorResponse(pgerr.New(pgerr.ProtocolViolation, "unsupported message type %T", m)))
		}
	}
}

// trimKeyword returns the upper-cased leading identifier of sql, used to
// classify statements the hand-rolled planner never parses (transaction
// control, SHOW, DDL acknowledgements) before attempting planner.Parse.
func trimKeyword(sql string) string {
	s := strings.TrimSpace(sql)
	i := strings.IndexFunc(s, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == ';' || r == '(' })
	if i < 0 {
		i = len(s)
	}
	return strings.ToUpper(s[:i])
}

// ackOnlyKeywords never produce a result set: the gateway has no real
// transaction, replication or DDL surface (spec Non-goals), so these are
// acknowledged with a matching CommandComplete tag and nothing else.
var ackOnlyKeywords = map[string]string{
	"BEGIN": "BEGIN", "START": "BEGIN", "COMMIT": "COMMIT", "END": "COMMIT",
	"ROLLBACK": "ROLLBACK", "SAVEPOINT": "SAVEPOINT", "RELEASE": "RELEASE",
	"DISCARD": "DISCARD", "VACUUM": "VACUUM", "ANALYZE": "ANALYZE", "REINDEX": "REINDEX",
	"LISTEN": "LISTEN", "UNLISTEN": "UNLISTEN", "NOTIFY": "NOTIFY",
	"GRANT": "GRANT", "REVOKE": "REVOKE", "CREATE": "CREATE", "DROP": "DROP", "ALTER": "ALTER",
}

// classifyAndRun runs sql against the fetch/engine pipeline and returns a
// command tag plus an execResult (nil for statements with no result set), or
// an error.
func (c *conn) classifyAndRun(ctx context.Context, sql string) (tag string, res *execResult, err error) {
	kw := trimKeyword(sql)

	if ackTag, ok := ackOnlyKeywords[kw]; ok {
		return ackTag, nil, nil
	}
	if kw == "SHOW" {
		name, val := showParameter(sql)
		return "SHOW", &execResult{
			Columns: []wire.ColumnDesc{{Name: name, OID: 25}},
			Rows:    [][]columnar.Value{{{Kind: columnar.Text, Text: val}}},
		}, nil
	}

	return c.runSelectOrSet(ctx, sql)
}
