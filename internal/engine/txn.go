package engine

import (
	"context"
	"fmt"
	"time"

	"leverager/internal/core"
	apperrors "leverager/pkg/errors"
	"leverager/pkg/telemetry"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// unitOfWork emulates ledger-style all-or-nothing semantics: engine
// bookkeeping and venue balances are snapshotted at operation entry and
// restored as a unit on any failure, so no partial leverage state is ever
// observable and the bridge loan is never left outstanding.
type unitOfWork struct {
	op        string
	id        string
	startedAt time.Time
	prevPos   core.Position
	venueSnap any
}

func (e *Engine) begin(op string) (*unitOfWork, error) {
	snapper, ok := e.venue.(core.ISnapshotter)
	if !ok {
		return nil, fmt.Errorf("%w: venue %s", apperrors.ErrVenueNotSnapshottable, e.venue.GetName())
	}

	return &unitOfWork{
		op:        op,
		id:        uuid.NewString(),
		startedAt: time.Now(),
		prevPos:   e.pos,
		venueSnap: snapper.Snapshot(),
	}, nil
}

// rollback discards every effect of the operation and returns the causing
// error, annotated with the operation name.
func (e *Engine) rollback(ctx context.Context, uow *unitOfWork, cause error) error {
	e.pos = uow.prevPos
	e.lastProceeds = decimal.Zero

	if snapper, ok := e.venue.(core.ISnapshotter); ok {
		if err := snapper.Restore(uow.venueSnap); err != nil {
			// A failed restore leaves the venue inconsistent; surface both.
			e.logger.Error("Venue snapshot restore failed", "operation", uow.op, "error", err)
			return fmt.Errorf("%s failed (%v) and venue restore failed: %w", uow.op, cause, err)
		}
	}

	telemetry.GetGlobalMetrics().RecordRollback(ctx, e.venue.GetName(), uow.op)
	e.logger.Warn("Operation discarded", "operation", uow.op, "op_id", uow.id, "error", cause.Error())
	return fmt.Errorf("%s discarded: %w", uow.op, cause)
}

// commit persists bookkeeping and records the operation latency.
func (e *Engine) commit(ctx context.Context, uow *unitOfWork) {
	e.persist(ctx)
	elapsed := float64(time.Since(uow.startedAt).Microseconds()) / 1000.0
	if m := telemetry.GetGlobalMetrics().OperationLatency; m != nil {
		m.Record(ctx, elapsed)
	}
	e.logger.Debug("Operation committed", "operation", uow.op, "op_id", uow.id, "elapsed_ms", elapsed)
}

func (e *Engine) persist(ctx context.Context) {
	if e.store == nil {
		return
	}
	state := &core.EngineState{
		Principal:      e.pos.Principal.String(),
		TargetLtvBps:   e.pos.TargetLtvBps,
		SafetyBufBps:   e.pos.SafetyBufBps,
		Active:         e.pos.Active,
		LastSharePrice: e.pos.LastSharePrice.String(),
		UpdatedAt:      time.Now().UnixNano(),
	}
	if err := e.store.SaveState(ctx, state); err != nil {
		// Persistence is recovery aid, not correctness; log and move on.
		e.logger.Error("Failed to persist engine state", "error", err)
	}
}

func (e *Engine) restore(ctx context.Context) error {
	state, err := e.store.LoadState(ctx)
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}
	pos, err := positionFromState(state)
	if err != nil {
		return err
	}
	e.pos = pos
	e.logger.Info("Engine state restored",
		"principal", e.pos.Principal,
		"target_ltv_bps", e.pos.TargetLtvBps,
		"active", e.pos.Active)
	return nil
}
