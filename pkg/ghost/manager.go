package ghost

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lexvault/lexvault/pkg/audit"
	"github.com/lexvault/lexvault/pkg/auth"
	"github.com/lexvault/lexvault/pkg/firms"
	"github.com/lexvault/lexvault/pkg/observability"
)

// Manager owns the ghost session lifecycle.
type Manager struct {
	store       Store
	firms       *firms.Service
	audit       audit.Logger
	metrics     *observability.Metrics
	maxDuration time.Duration
	now         func() time.Time
}

// Option configures the Manager.
type Option func(*Manager)

// WithMaxDuration bounds session lifetime.
func WithMaxDuration(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.maxDuration = d
		}
	}
}

// WithMetrics wires Prometheus counters for session lifecycle events.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithClock overrides the time source, for tests.
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewManager wires a ghost session manager.
func NewManager(store Store, firmSvc *firms.Service, auditLogger audit.Logger, opts ...Option) *Manager {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	m := &Manager{
		store:       store,
		firms:       firmSvc,
		audit:       auditLogger,
		maxDuration: DefaultMaxDuration,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start opens a ghost session for operator into the target firm. The
// operator needs the ghost permission, the firm must exist and be
// active, and the operator must have no other active session. The
// returned session carries the opaque token that End requires.
func (m *Manager) Start(ctx context.Context, operator *auth.Principal, firmID, purpose, notes string) (*Session, error) {
	if !operator.HasPermission(auth.PermGhostMode) {
		m.auditDenied(ctx, operator, firmID, "permission")
		return nil, ErrNotPermitted
	}
	purpose = strings.TrimSpace(purpose)
	if purpose == "" {
		return nil, fmt.Errorf("ghost: purpose is required")
	}

	firm, err := m.firms.FindByID(ctx, firmID)
	if err != nil {
		if errors.Is(err, firms.ErrNotFound) {
			return nil, ErrFirmNotFound
		}
		return nil, fmt.Errorf("ghost: resolve firm: %w", err)
	}
	if !firm.Active() {
		return nil, ErrFirmNotFound
	}

	// A session the operator forgot about does not block a new one once it
	// has expired.
	if existing, err := m.store.ActiveByOperator(ctx, operator.UserID); err == nil {
		if existing.Active(m.now()) {
			return nil, ErrConflict
		}
		if err := m.expire(ctx, existing); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("ghost: check active session: %w", err)
	}

	now := m.now().UTC()
	detail := purpose
	if notes != "" {
		detail = purpose + ": " + notes
	}
	sess := &Session{
		ID:         uuid.NewString(),
		Token:      uuid.NewString(),
		OperatorID: operator.UserID,
		FirmID:     firm.ID,
		FirmSlug:   firm.Slug,
		Purpose:    purpose,
		Notes:      notes,
		StartedAt:  now,
		ExpiresAt:  now.Add(m.maxDuration),
		Trail: []AuditEntry{{
			At:     now,
			Action: "SESSION_STARTED",
			Detail: detail,
		}},
	}
	if err := m.store.Create(ctx, sess); err != nil {
		return nil, err
	}

	event := audit.NewEvent(audit.EventTypeGhostStart, audit.EventStatusSuccess, nil)
	event.UserID = operator.UserID
	event.Email = operator.Email
	event.FirmID = firm.ID
	event.Message = purpose
	event.Metadata = map[string]any{"ghost_session_id": sess.ID, "firm_slug": firm.Slug}
	m.logEvent(ctx, event)

	if m.metrics != nil {
		m.metrics.GhostSessionsTotal.WithLabelValues("start").Inc()
		m.metrics.GhostSessionsActive.Inc()
	}
	return sess, nil
}

// Resolve returns the operator's active session. Expired sessions are
// closed lazily on first touch and resolve as not found.
func (m *Manager) Resolve(ctx context.Context, operatorID string) (*Session, error) {
	sess, err := m.store.ActiveByOperator(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	if !sess.Active(m.now()) {
		if err := m.expire(ctx, sess); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return sess, nil
}

// ResolveToken looks a session up by its opaque token. An expired
// session is settled on first touch and returned in its ended state, so
// callers can distinguish "ended" from "never existed".
func (m *Manager) ResolveToken(ctx context.Context, token string) (*Session, error) {
	sess, err := m.store.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess.EndedAt == nil && !sess.Active(m.now()) {
		if err := m.expire(ctx, sess); err != nil {
			return nil, err
		}
		ended := m.now().UTC()
		sess.EndedAt = &ended
	}
	return sess, nil
}

// ActiveFirmSlug reports the firm the operator is currently ghosting, or
// "" when no session is active. Satisfies identity extraction's ghost
// source.
func (m *Manager) ActiveFirmSlug(ctx context.Context, userID string) (string, error) {
	sess, err := m.Resolve(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return sess.FirmSlug, nil
}

// Record appends an action to the operator's active session trail.
func (m *Manager) Record(ctx context.Context, operatorID, action, detail string) error {
	sess, err := m.Resolve(ctx, operatorID)
	if err != nil {
		return err
	}
	return m.store.AppendTrail(ctx, sess.ID, AuditEntry{
		At:     m.now().UTC(),
		Action: action,
		Detail: detail,
	})
}

// End closes the operator's active session. The presented token must
// match the session's own; a stale or foreign token resolves as not
// found rather than ending someone else's session.
func (m *Manager) End(ctx context.Context, operator *auth.Principal, token string) (*Session, error) {
	sess, err := m.Resolve(ctx, operator.UserID)
	if err != nil {
		return nil, err
	}
	if token != "" && sess.Token != token {
		return nil, ErrNotFound
	}

	now := m.now().UTC()
	if err := m.store.End(ctx, sess.ID, now, AuditEntry{At: now, Action: "SESSION_ENDED"}); err != nil {
		return nil, err
	}
	sess.EndedAt = &now

	event := audit.NewEvent(audit.EventTypeGhostEnd, audit.EventStatusSuccess, nil)
	event.UserID = operator.UserID
	event.Email = operator.Email
	event.FirmID = sess.FirmID
	event.Metadata = map[string]any{"ghost_session_id": sess.ID, "firm_slug": sess.FirmSlug}
	m.logEvent(ctx, event)

	if m.metrics != nil {
		m.metrics.GhostSessionsTotal.WithLabelValues("end").Inc()
		m.metrics.GhostSessionsActive.Dec()
	}
	return sess, nil
}

// Sweep closes every expired-but-unended session and returns how many it
// closed. Run periodically; lazy expiry already keeps expired sessions
// from granting scope, the sweep just settles the records and trails.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	sessions, err := m.store.ListUnended(ctx)
	if err != nil {
		return 0, err
	}
	now := m.now()
	closed := 0
	for _, sess := range sessions {
		if sess.Active(now) {
			continue
		}
		if err := m.expire(ctx, sess); err != nil {
			return closed, err
		}
		closed++
	}
	return closed, nil
}

func (m *Manager) expire(ctx context.Context, sess *Session) error {
	now := m.now().UTC()
	err := m.store.End(ctx, sess.ID, now, AuditEntry{At: now, Action: "SESSION_EXPIRED"})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("ghost: expire session: %w", err)
	}

	event := audit.NewEvent(audit.EventTypeGhostExpired, audit.EventStatusSuccess, nil)
	event.UserID = sess.OperatorID
	event.FirmID = sess.FirmID
	event.Metadata = map[string]any{"ghost_session_id": sess.ID, "firm_slug": sess.FirmSlug}
	m.logEvent(ctx, event)

	if m.metrics != nil {
		m.metrics.GhostSessionsTotal.WithLabelValues("expired").Inc()
		m.metrics.GhostSessionsActive.Dec()
	}
	return nil
}

func (m *Manager) auditDenied(ctx context.Context, operator *auth.Principal, firmID, reason string) {
	event := audit.NewEvent(audit.EventTypeGhostDenied, audit.EventStatusDenied, nil)
	if operator != nil {
		event.UserID = operator.UserID
		event.Email = operator.Email
	}
	event.Reason = reason
	event.Metadata = map[string]any{"firm_id": firmID}
	m.logEvent(ctx, event)
}

func (m *Manager) logEvent(ctx context.Context, event *audit.Event) {
	if err := m.audit.Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("ghost audit write failed")
	}
}
