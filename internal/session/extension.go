package session

import (
	"context"
	"time"
)

// ExtensionScheduler periodically calls the backend's extend_session for
// every live session, well before each token's expiry (§4.8). Independent of
// the keepalive package's peer-liveness prober.
type ExtensionScheduler struct {
	manager  *Manager
	interval time.Duration
}

// NewExtensionScheduler creates a scheduler that ticks every interval.
func NewExtensionScheduler(manager *Manager, interval time.Duration) *ExtensionScheduler {
	return &ExtensionScheduler{manager: manager, interval: interval}
}

// Run blocks, extending every registered session on each tick, until ctx is
// done. Intended to be started as a single background goroutine from main.
func (s *ExtensionScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.extendAll(ctx)
		}
	}
}

func (s *ExtensionScheduler) extendAll(ctx context.Context) {
	s.manager.mu.RLock()
	sessions := make([]*AuthenticatedSession, 0, len(s.manager.sessions))
	for _, sess := range s.manager.sessions {
		sessions = append(sessions, sess)
	}
	s.manager.mu.RUnlock()

	for _, sess := range sessions {
		s.extendOne(ctx, sess)
	}
}

func (s *ExtensionScheduler) extendOne(ctx context.Context, sess *AuthenticatedSession) {
	token, expires, err := sess.Client.ExtendSession(ctx)
	if err != nil {
		s.manager.logger.Warn().
			Err(err).
			Str("session_id", sess.SessionID).
			Msg("session extension failed, will retry next tick")
		return
	}

	sess.mu.Lock()
	sess.BearerToken = token
	sess.TokenExpiry = expires
	sess.mu.Unlock()
	sess.Client.SetToken(token)
}

// Invalidate exposes the manager's session invalidation to callers that
// detect a permanent extension failure (e.g. repeated auth errors), causing
// subsequent queries on connections bound to this session to fail with a
// re-auth error per §4.8.
func (s *ExtensionScheduler) Invalidate(sess *AuthenticatedSession) {
	s.manager.invalidate(sess)
}
