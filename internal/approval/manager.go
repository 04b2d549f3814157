// Package approval implements the Approval Manager (spec §4.7): the
// human-in-the-loop gate between a tool call the LLM wants to make and the
// tool actually running. It tracks pending requests, applies the
// always-allow/always-deny/mode precedence, enforces a session-scoped
// rate limit on auto-approvals, and times out requests nobody answers.
package approval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dexto-ai/dexto-core/internal/eventbus"
	"github.com/dexto-ai/dexto-core/pkg/dexto"
)

// Handler is supplied by a transport (CLI, WebUI) to surface a pending
// request to a human and return their decision. A nil Handler makes every
// non-auto-resolved request fail with CodeApprovalHandlerMissing, matching
// spec §4.7's "no handler registered" edge case.
type Handler func(ctx context.Context, req dexto.ApprovalRequest) (dexto.ApprovalDecision, error)

// pendingEntry tracks one in-flight request's channel for WaitForApproval
// and the ApprovalRequest record itself.
type pendingEntry struct {
	request dexto.ApprovalRequest
	resolve chan dexto.ApprovalDecision
}

// Manager is one agent's approval state: the policy, the per-session
// remembered choices, and in-flight requests. Grounded on the teacher's
// policy.ApprovalManager, generalized from an edge-trust-level model to
// spec §4.7's session-cache + always-allow/deny + mode precedence.
type Manager struct {
	policy  *dexto.Policy
	handler Handler
	bus     *eventbus.Bus

	mu          sync.Mutex
	pending     map[string]*pendingEntry
	sessionCache map[string]map[string]dexto.ApprovalStatus // sessionID -> toolName -> remembered decision

	rateMu           sync.Mutex
	autoApprovals    map[string][]time.Time // sessionID -> recent auto-approval timestamps
	autoApprovalWindow time.Duration
	autoApprovalLimit  int
}

// NewManager builds a Manager for policy, publishing approval lifecycle
// events on bus. handler may be nil; see Handler's doc comment.
func NewManager(policy *dexto.Policy, handler Handler, bus *eventbus.Bus) *Manager {
	if policy == nil {
		policy = dexto.NewPolicy()
	}
	return &Manager{
		policy:             policy,
		handler:            handler,
		bus:                bus,
		pending:            make(map[string]*pendingEntry),
		sessionCache:       make(map[string]map[string]dexto.ApprovalStatus),
		autoApprovals:      make(map[string][]time.Time),
		autoApprovalWindow: time.Minute,
		autoApprovalLimit:  20,
	}
}

// SetHandler replaces the active approval handler (e.g. once a transport
// attaches after agent construction).
func (m *Manager) SetHandler(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// RequestApproval resolves a tool call against policy precedence, strictly
// in this order (spec §4.7):
//  1. global policy.AlwaysDeny -> denied
//  2. global policy.AlwaysAllow -> approved
//  3. session's remembered choice (sessionCache) -> that choice
//  4. policy.Mode == auto-approve/auto-deny -> that outcome
//  5. otherwise ask the handler, falling back to CodeApprovalHandlerMissing
//     if none is registered.
// A handler's approval in manual mode is recorded in the session's
// auto-approval sliding window (trackAutoApproval), so it counts toward the
// limit that auto-approve mode enforces; the handler's approval itself is
// never refused by that limit.
func (m *Manager) RequestApproval(ctx context.Context, sessionID, toolName string, args dexto.ToolArgsView) (dexto.ApprovalOutcome, error) {
	if _, denied := m.policy.AlwaysDeny[toolName]; denied {
		return dexto.ApprovalOutcome{Status: dexto.ApprovalDenied}, nil
	}
	if _, allowed := m.policy.AlwaysAllow[toolName]; allowed {
		return dexto.ApprovalOutcome{Status: dexto.ApprovalApproved}, nil
	}

	if status, ok := m.cachedDecision(sessionID, toolName); ok {
		return dexto.ApprovalOutcome{ApprovalID: "", Status: status}, nil
	}

	switch m.policy.Mode {
	case dexto.ModeAutoApprove:
		if !m.allowAutoApproval(sessionID) {
			return dexto.ApprovalOutcome{}, dexto.NewError(dexto.CodeToolAborted,
				"auto-approval rate limit exceeded for session", nil).WithSession(sessionID, "")
		}
		return dexto.ApprovalOutcome{Status: dexto.ApprovalApproved}, nil
	case dexto.ModeAutoDeny:
		return dexto.ApprovalOutcome{Status: dexto.ApprovalDenied}, nil
	}

	decision, approvalID, err := m.askHandler(ctx, sessionID, dexto.ApprovalTypeToolConfirmation, toolName, args)
	if err != nil {
		return dexto.ApprovalOutcome{}, err
	}
	return dexto.ApprovalOutcome{ApprovalID: approvalID, Status: decision.Status}, nil
}

// Ask surfaces a free-text question to the human via the same handler and
// pending-request machinery as a tool approval, but tagged as an
// elicitation request (spec §4.6's ask_user tool). It bypasses the
// always-allow/deny and auto-approve/deny precedence entirely — those only
// make sense for tool_confirmation — and always calls the handler.
func (m *Manager) Ask(ctx context.Context, sessionID, prompt string) (dexto.ApprovalDecision, error) {
	decision, _, err := m.askHandler(ctx, sessionID, dexto.ApprovalTypeElicitation, "", dexto.ToolArgsView(prompt))
	return decision, err
}

func (m *Manager) cachedDecision(sessionID, toolName string) (dexto.ApprovalStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	choices, ok := m.sessionCache[sessionID]
	if !ok {
		return "", false
	}
	status, ok := choices[toolName]
	return status, ok
}

func (m *Manager) rememberChoice(sessionID, toolName string, status dexto.ApprovalStatus) {
	if m.policy.AllowedToolsStorage != dexto.AllowedToolsMemory && m.policy.AllowedToolsStorage != dexto.AllowedToolsPersistent {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	choices, ok := m.sessionCache[sessionID]
	if !ok {
		choices = make(map[string]dexto.ApprovalStatus)
		m.sessionCache[sessionID] = choices
	}
	choices[toolName] = status
}

func (m *Manager) askHandler(ctx context.Context, sessionID string, reqType dexto.ApprovalRequestType, toolName string, args dexto.ToolArgsView) (dexto.ApprovalDecision, string, error) {
	m.mu.Lock()
	handler := m.handler
	m.mu.Unlock()
	if handler == nil {
		return dexto.ApprovalDecision{}, "", dexto.NewError(dexto.CodeApprovalHandlerMissing,
			fmt.Sprintf("no approval handler registered for tool %q", toolName), nil).WithSession(sessionID, "")
	}

	req := dexto.ApprovalRequest{
		ApprovalID: uuid.New().String(),
		SessionID:  sessionID,
		Type:       reqType,
		ToolName:   toolName,
		Args:       args,
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(m.policy.Timeout()),
		Status:     dexto.ApprovalPending,
	}

	entry := &pendingEntry{request: req, resolve: make(chan dexto.ApprovalDecision, 1)}
	m.mu.Lock()
	m.pending[req.ApprovalID] = entry
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.pending, req.ApprovalID)
		m.mu.Unlock()
	}()

	if m.bus != nil {
		m.bus.Emit(eventbus.TopicApprovalRequest, eventbus.ApprovalRequestPayload{
			ApprovalID: req.ApprovalID, SessionID: sessionID, Type: string(req.Type),
			ToolName: toolName, Args: string(args), TimeoutMs: m.policy.Timeout().Milliseconds(),
		})
	}

	decisionCh := make(chan struct {
		decision dexto.ApprovalDecision
		err      error
	}, 1)
	go func() {
		decision, err := handler(ctx, req)
		decisionCh <- struct {
			decision dexto.ApprovalDecision
			err      error
		}{decision, err}
	}()

	var decision dexto.ApprovalDecision
	select {
	case result := <-decisionCh:
		if result.err != nil {
			return dexto.ApprovalDecision{}, "", result.err
		}
		decision = result.decision
	case external := <-entry.resolve:
		decision = external
	case <-time.After(m.policy.Timeout()):
		decision = dexto.ApprovalDecision{Status: dexto.ApprovalTimedOut}
	case <-ctx.Done():
		decision = dexto.ApprovalDecision{Status: dexto.ApprovalCancelled}
	}

	if reqType == dexto.ApprovalTypeToolConfirmation {
		if decision.Status == dexto.ApprovalApproved && m.policy.Mode == dexto.ModeManual {
			m.trackAutoApproval(sessionID)
		}
		if decision.RememberChoice {
			m.rememberChoice(sessionID, toolName, decision.Status)
		}
	}

	if m.bus != nil {
		m.bus.Emit(eventbus.TopicApprovalResponse, eventbus.ApprovalResponsePayload{
			ApprovalID: req.ApprovalID, SessionID: sessionID, Status: string(decision.Status),
			RememberChoice: decision.RememberChoice,
		})
	}

	return decision, req.ApprovalID, nil
}

// Resolve answers a pending request identified by approvalID — the path a
// transport uses when the human's decision arrives asynchronously (e.g. a
// WebUI POST) rather than as Handler's direct return value.
func (m *Manager) Resolve(approvalID string, decision dexto.ApprovalDecision) error {
	m.mu.Lock()
	entry, ok := m.pending[approvalID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("approval: no pending request %q", approvalID)
	}
	select {
	case entry.resolve <- decision:
		return nil
	default:
		return fmt.Errorf("approval: request %q already resolved", approvalID)
	}
}

// ListPending returns every currently outstanding request.
func (m *Manager) ListPending() []dexto.ApprovalRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]dexto.ApprovalRequest, 0, len(m.pending))
	for _, e := range m.pending {
		out = append(out, e.request)
	}
	return out
}

// allowAutoApproval enforces the sliding-window auto-approval rate limit,
// grounded on the teacher's trackAutoApproval/getSessionApprovalCount.
func (m *Manager) allowAutoApproval(sessionID string) bool {
	m.rateMu.Lock()
	defer m.rateMu.Unlock()
	now := time.Now()
	cutoff := now.Add(-m.autoApprovalWindow)

	times := m.autoApprovals[sessionID]
	fresh := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= m.autoApprovalLimit {
		m.autoApprovals[sessionID] = fresh
		return false
	}
	m.autoApprovals[sessionID] = append(fresh, now)
	return true
}

func (m *Manager) trackAutoApproval(sessionID string) {
	m.rateMu.Lock()
	defer m.rateMu.Unlock()
	m.autoApprovals[sessionID] = append(m.autoApprovals[sessionID], time.Now())
}

// ClearSession drops the remembered allow/deny cache and rate-limit history
// for sessionID, called when a session is closed or its conversation is reset.
func (m *Manager) ClearSession(sessionID string) {
	m.mu.Lock()
	delete(m.sessionCache, sessionID)
	m.mu.Unlock()

	m.rateMu.Lock()
	delete(m.autoApprovals, sessionID)
	m.rateMu.Unlock()
}
