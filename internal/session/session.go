// Package session is the Session & Connection Registry (spec §4.8): it
// authenticates to the historian backend, keeps bearer tokens alive, and
// tracks per-connection state that is also served live as pg_stat_activity.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/akz4ol/histgate/internal/remote"
)

// AuthenticatedSession is the tuple owned exclusively by the Manager (§3).
// Handlers only ever see a *Handle, a read-only view over shared fields.
type AuthenticatedSession struct {
	SessionID      string
	Username       string
	BearerToken    string
	TokenExpiry    time.Time
	BackendBaseURL string
	Client         *remote.Client

	mu    sync.RWMutex
	valid bool
}

// Handle is the immutable, shared read-only view of a session held by a
// per-connection handler. It never mutates the underlying session directly;
// token refresh is owned exclusively by the Manager's extension scheduler.
type Handle struct {
	sess *AuthenticatedSession
}

// Token returns the session's current bearer token.
func (h *Handle) Token() string {
	h.sess.mu.RLock()
	defer h.sess.mu.RUnlock()
	return h.sess.BearerToken
}

// Valid reports whether the session is still usable (extension has not
// permanently failed).
func (h *Handle) Valid() bool {
	h.sess.mu.RLock()
	defer h.sess.mu.RUnlock()
	return h.sess.valid
}

// Client returns the remote API client bound to this session.
func (h *Handle) Client() *remote.Client {
	return h.sess.Client
}

// Username returns the authenticated backend username.
func (h *Handle) Username() string {
	return h.sess.Username
}

// State is a ConnectionRecord's lifecycle state (§3).
type State string

const (
	Idle    State = "idle"
	Active  State = "active"
	Closing State = "closing"
)

// ConnectionRecord is the per-connection row served by pg_stat_activity (§3, §4.7).
type ConnectionRecord struct {
	ConnectionID     int64
	PeerAddress      string
	ClientPort       int
	ApplicationName  string
	DatabaseName     string
	Username         string
	BackendStartTime time.Time

	mu              sync.RWMutex
	state           State
	lastQuery       string
	queryStart      time.Time
	queryStop       time.Time
	graphqlTimeMs   int64
	datafusionTimeMs int64
	overallTimeMs   int64
	lastAliveSent   time.Time
}

func (c *ConnectionRecord) snapshot() ConnectionRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := *c
	cp.mu = sync.RWMutex{}
	return cp
}

// State returns the connection's current lifecycle state.
func (c *ConnectionRecord) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// LastQuery returns the most recently started query text.
func (c *ConnectionRecord) LastQuery() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastQuery
}

func (c *ConnectionRecord) QueryStart() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.queryStart
}

func (c *ConnectionRecord) QueryStop() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.queryStop
}

func (c *ConnectionRecord) Timings() (graphqlMs, datafusionMs, overallMs int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.graphqlTimeMs, c.datafusionTimeMs, c.overallTimeMs
}

func (c *ConnectionRecord) LastAliveSent() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastAliveSent
}

// Manager owns the sessions map and the connections map exclusively; no other
// package mutates them (§5, Shared resources).
type Manager struct {
	mu sync.RWMutex

	logger  zerolog.Logger
	baseURL string

	sessions    map[string]*AuthenticatedSession
	connections map[int64]*ConnectionRecord

	nextConnID int64
}

// NewManager creates a Manager bound to the given historian backend base URL.
func NewManager(baseURL string, logger zerolog.Logger) *Manager {
	return &Manager{
		logger:      logger,
		baseURL:     baseURL,
		sessions:    make(map[string]*AuthenticatedSession),
		connections: make(map[int64]*ConnectionRecord),
	}
}

// Authenticate logs in to the historian backend and registers the resulting
// session. It is the only path by which a session is created.
func (m *Manager) Authenticate(ctx context.Context, username, password string) (*Handle, error) {
	client := remote.NewClient(m.baseURL)
	token, expires, err := client.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	client.SetToken(token)

	sess := &AuthenticatedSession{
		SessionID:      uuid.NewString(),
		Username:       username,
		BearerToken:    token,
		TokenExpiry:    expires,
		BackendBaseURL: m.baseURL,
		Client:         client,
		valid:          true,
	}

	m.mu.Lock()
	m.sessions[sess.SessionID] = sess
	m.mu.Unlock()

	m.logger.Info().Str("session_id", sess.SessionID).Str("user", username).Msg("authenticated session")
	return &Handle{sess: sess}, nil
}

// RemoveSession drops a session from the registry (client disconnect).
func (m *Manager) RemoveSession(h *Handle) {
	if h == nil {
		return
	}
	m.mu.Lock()
	delete(m.sessions, h.sess.SessionID)
	m.mu.Unlock()
}

// RegisterConnection creates and registers a new ConnectionRecord, assigning
// it a monotone, process-unique connection id.
func (m *Manager) RegisterConnection(peerAddr string, clientPort int, appName, dbName, username string) *ConnectionRecord {
	id := atomic.AddInt64(&m.nextConnID, 1)
	rec := &ConnectionRecord{
		ConnectionID:     id,
		PeerAddress:      peerAddr,
		ClientPort:       clientPort,
		ApplicationName:  appName,
		DatabaseName:     dbName,
		Username:         username,
		BackendStartTime: time.Now(),
		state:            Idle,
	}

	m.mu.Lock()
	m.connections[id] = rec
	m.mu.Unlock()
	return rec
}

// Unregister removes a connection from the registry on close.
func (m *Manager) Unregister(id int64) {
	m.mu.Lock()
	delete(m.connections, id)
	m.mu.Unlock()
}

// StartQuery transitions a connection to active and records the query text.
func (m *Manager) StartQuery(id int64, sql string) {
	m.mu.RLock()
	rec, ok := m.connections[id]
	m.mu.RUnlock()
	if !ok {
		return
	}
	rec.mu.Lock()
	rec.state = Active
	rec.lastQuery = sql
	rec.queryStart = time.Now()
	rec.queryStop = time.Time{}
	rec.mu.Unlock()
}

// EndQuery transitions a connection back to idle and computes overall_time_ms.
func (m *Manager) EndQuery(id int64) {
	m.mu.RLock()
	rec, ok := m.connections[id]
	m.mu.RUnlock()
	if !ok {
		return
	}
	rec.mu.Lock()
	rec.state = Idle
	rec.queryStop = time.Now()
	if !rec.queryStart.IsZero() {
		rec.overallTimeMs = rec.queryStop.Sub(rec.queryStart).Milliseconds()
	}
	rec.mu.Unlock()
}

// SetTimings records the remote-fetch and local-execution phase timings for
// the connection's most recent query (graphql_time_ms / datafusion_time_ms in
// the data model, named for the historian-API call and the embedded SQL
// engine run respectively).
func (m *Manager) SetTimings(id int64, graphqlMs, datafusionMs, overallMs int64) {
	m.mu.RLock()
	rec, ok := m.connections[id]
	m.mu.RUnlock()
	if !ok {
		return
	}
	rec.mu.Lock()
	rec.graphqlTimeMs = graphqlMs
	rec.datafusionTimeMs = datafusionMs
	if overallMs > 0 {
		rec.overallTimeMs = overallMs
	}
	rec.mu.Unlock()
}

// MarkAliveSent records that a keep-alive probe was just sent.
func (m *Manager) MarkAliveSent(id int64) {
	m.mu.RLock()
	rec, ok := m.connections[id]
	m.mu.RUnlock()
	if !ok {
		return
	}
	rec.mu.Lock()
	rec.lastAliveSent = time.Now()
	rec.mu.Unlock()
}

// GetConnections returns a point-in-time snapshot of every registered
// connection, safe to hand to the catalog's pg_stat_activity assembler.
func (m *Manager) GetConnections() []ConnectionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ConnectionRecord, 0, len(m.connections))
	for _, rec := range m.connections {
		out = append(out, rec.snapshot())
	}
	return out
}

// CleanupConnectionsByAddress removes every connection whose peer address
// matches addr, used when a client disconnect is detected out-of-band (e.g.
// by the keep-alive prober).
func (m *Manager) CleanupConnectionsByAddress(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range m.connections {
		if rec.PeerAddress == addr {
			delete(m.connections, id)
		}
	}
}

// SessionCount reports the number of live authenticated sessions.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// invalidate marks a session unusable after a permanent extension failure.
func (m *Manager) invalidate(sess *AuthenticatedSession) {
	sess.mu.Lock()
	sess.valid = false
	sess.mu.Unlock()
}
