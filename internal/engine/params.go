package engine

import (
	"context"
	"fmt"
	"time"

	"leverager/internal/core"
	"leverager/internal/safety"
)

// SetActive toggles whether new deposits are accepted. Takes effect
// immediately; unwinding is never gated by this flag.
func (e *Engine) SetActive(active bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pos.Active = active
	e.logger.Info("Deposit acceptance updated", "active", active)
}

// ProposeTargetLtv queues a governance-delayed target LTV change. The value
// is validated now but becomes applicable only after the configured delay.
func (e *Engine) ProposeTargetLtv(targetLtvBps int64) (core.PendingChange, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := safety.ValidateEngineParameters(targetLtvBps, e.pos.SafetyBufBps, e.cfg.MinTargetLtvBps, e.cfg.MaxTargetLtvBps); err != nil {
		return core.PendingChange{}, err
	}

	change := core.PendingChange{
		Field:      "target_ltv_bps",
		Value:      targetLtvBps,
		EligibleAt: time.Now().Add(e.cfg.GovernanceDelay),
	}
	e.changes = append(e.changes, change)
	e.logger.Info("Target LTV change queued",
		"target_ltv_bps", targetLtvBps,
		"eligible_at", change.EligibleAt)
	return change, nil
}

// ProposeSafetyBuffer queues a governance-delayed safety buffer change.
func (e *Engine) ProposeSafetyBuffer(bufferBps int64) (core.PendingChange, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := safety.ValidateEngineParameters(e.pos.TargetLtvBps, bufferBps, e.cfg.MinTargetLtvBps, e.cfg.MaxTargetLtvBps); err != nil {
		return core.PendingChange{}, err
	}

	change := core.PendingChange{
		Field:      "safety_buffer_bps",
		Value:      bufferBps,
		EligibleAt: time.Now().Add(e.cfg.GovernanceDelay),
	}
	e.changes = append(e.changes, change)
	return change, nil
}

// ApplyPendingChanges applies every queued change whose delay has elapsed
// and returns how many were applied. Values are re-validated at apply time.
func (e *Engine) ApplyPendingChanges() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	applied := 0
	remaining := e.changes[:0]
	for _, change := range e.changes {
		if now.Before(change.EligibleAt) {
			remaining = append(remaining, change)
			continue
		}
		switch change.Field {
		case "target_ltv_bps":
			if err := safety.ValidateEngineParameters(change.Value, e.pos.SafetyBufBps, e.cfg.MinTargetLtvBps, e.cfg.MaxTargetLtvBps); err != nil {
				return applied, fmt.Errorf("pending %s no longer valid: %w", change.Field, err)
			}
			e.pos.TargetLtvBps = change.Value
		case "safety_buffer_bps":
			if err := safety.ValidateEngineParameters(e.pos.TargetLtvBps, change.Value, e.cfg.MinTargetLtvBps, e.cfg.MaxTargetLtvBps); err != nil {
				return applied, fmt.Errorf("pending %s no longer valid: %w", change.Field, err)
			}
			e.pos.SafetyBufBps = change.Value
		default:
			return applied, fmt.Errorf("unknown pending change field %q", change.Field)
		}
		e.logger.Info("Governance change applied", "field", change.Field, "value", change.Value)
		applied++
	}
	e.changes = remaining
	if applied > 0 {
		e.persist(context.Background())
	}
	return applied, nil
}

// PendingChanges returns a copy of the queued governance changes.
func (e *Engine) PendingChanges() []core.PendingChange {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]core.PendingChange, len(e.changes))
	copy(out, e.changes)
	return out
}
