package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricCollateral       = "leverager_collateral"
	MetricDebt             = "leverager_debt"
	MetricPrincipal        = "leverager_principal"
	MetricLtvBps           = "leverager_ltv_bps"
	MetricHealthFactor     = "leverager_health_factor"
	MetricSharePrice       = "leverager_share_price"
	MetricLoansTotal       = "leverager_bridge_loans_total"
	MetricRebalancesTotal  = "leverager_rebalances_total"
	MetricGateSkipsTotal   = "leverager_gate_skips_total"
	MetricRollbacksTotal   = "leverager_rollbacks_total"
	MetricCompoundedTotal  = "leverager_compounded_total"
	MetricDepegGuardOpen   = "leverager_depeg_guard_open"
	MetricOperationLatency = "leverager_operation_latency_ms"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	LoansTotal       metric.Int64Counter
	RebalancesTotal  metric.Int64Counter
	GateSkipsTotal   metric.Int64Counter
	RollbacksTotal   metric.Int64Counter
	CompoundedTotal  metric.Float64Counter
	OperationLatency metric.Float64Histogram
	Collateral       metric.Float64ObservableGauge
	Debt             metric.Float64ObservableGauge
	Principal        metric.Float64ObservableGauge
	LtvBps           metric.Int64ObservableGauge
	HealthFactor     metric.Float64ObservableGauge
	SharePrice       metric.Float64ObservableGauge
	DepegGuardOpen   metric.Int64ObservableGauge

	// State for observable gauges, keyed by venue name
	mu              sync.RWMutex
	collateralMap   map[string]float64
	debtMap         map[string]float64
	principalMap    map[string]float64
	ltvMap          map[string]int64
	healthFactorMap map[string]float64
	sharePriceMap   map[string]float64
	depegOpenMap    map[string]int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			collateralMap:   make(map[string]float64),
			debtMap:         make(map[string]float64),
			principalMap:    make(map[string]float64),
			ltvMap:          make(map[string]int64),
			healthFactorMap: make(map[string]float64),
			sharePriceMap:   make(map[string]float64),
			depegOpenMap:    make(map[string]int64),
		}
		// Initialization of instruments happens in InitMetrics
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.LoansTotal, err = meter.Int64Counter(MetricLoansTotal, metric.WithDescription("Total bridge loans requested"))
	if err != nil {
		return err
	}

	m.RebalancesTotal, err = meter.Int64Counter(MetricRebalancesTotal, metric.WithDescription("Total rebalance operations executed"))
	if err != nil {
		return err
	}

	m.GateSkipsTotal, err = meter.Int64Counter(MetricGateSkipsTotal, metric.WithDescription("Deposits degraded to unleveraged supply by the profitability gate"))
	if err != nil {
		return err
	}

	m.RollbacksTotal, err = meter.Int64Counter(MetricRollbacksTotal, metric.WithDescription("Operations discarded by rollback"))
	if err != nil {
		return err
	}

	m.CompoundedTotal, err = meter.Float64Counter(MetricCompoundedTotal, metric.WithDescription("Total base-asset value reinvested from rewards"))
	if err != nil {
		return err
	}

	m.OperationLatency, err = meter.Float64Histogram(MetricOperationLatency, metric.WithDescription("Latency of engine operations"), metric.WithUnit("ms"))
	if err != nil {
		return err
	}

	// Observables
	m.Collateral, err = meter.Float64ObservableGauge(MetricCollateral, metric.WithDescription("Current venue collateral in base asset"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for venue, val := range m.collateralMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("venue", venue)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.Debt, err = meter.Float64ObservableGauge(MetricDebt, metric.WithDescription("Current venue debt in base asset"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for venue, val := range m.debtMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("venue", venue)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.Principal, err = meter.Float64ObservableGauge(MetricPrincipal, metric.WithDescription("Depositor principal net of withdrawals"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for venue, val := range m.principalMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("venue", venue)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.LtvBps, err = meter.Int64ObservableGauge(MetricLtvBps, metric.WithDescription("Current loan-to-value in basis points"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for venue, val := range m.ltvMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("venue", venue)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.HealthFactor, err = meter.Float64ObservableGauge(MetricHealthFactor, metric.WithDescription("Current health factor (1.0 = insolvency boundary)"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for venue, val := range m.healthFactorMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("venue", venue)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.SharePrice, err = meter.Float64ObservableGauge(MetricSharePrice, metric.WithDescription("Net value per unit of principal"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for venue, val := range m.sharePriceMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("venue", venue)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.DepegGuardOpen, err = meter.Int64ObservableGauge(MetricDepegGuardOpen, metric.WithDescription("Depeg guard open state (1=blocking, 0=normal)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for asset, val := range m.depegOpenMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("asset", asset)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// RecordLoan increments the bridge-loan counter
func (m *MetricsHolder) RecordLoan(ctx context.Context, venue, action string) {
	if m.LoansTotal != nil {
		m.LoansTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("venue", venue),
			attribute.String("action", action),
		))
	}
}

// RecordRebalance increments the rebalance counter
func (m *MetricsHolder) RecordRebalance(ctx context.Context, venue string) {
	if m.RebalancesTotal != nil {
		m.RebalancesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("venue", venue)))
	}
}

// RecordGateSkip increments the profitability-gate degradation counter
func (m *MetricsHolder) RecordGateSkip(ctx context.Context, venue string) {
	if m.GateSkipsTotal != nil {
		m.GateSkipsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("venue", venue)))
	}
}

// RecordRollback increments the discarded-operation counter
func (m *MetricsHolder) RecordRollback(ctx context.Context, venue, op string) {
	if m.RollbacksTotal != nil {
		m.RollbacksTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("venue", venue),
			attribute.String("operation", op),
		))
	}
}

// RecordCompounded adds reinvested reward value
func (m *MetricsHolder) RecordCompounded(ctx context.Context, venue string, amount float64) {
	if m.CompoundedTotal != nil {
		m.CompoundedTotal.Add(ctx, amount, metric.WithAttributes(attribute.String("venue", venue)))
	}
}

// SetPositionGauges updates the per-venue position gauges
func (m *MetricsHolder) SetPositionGauges(venue string, collateral, debt, principal float64, ltvBps int64, healthFactor, sharePrice float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collateralMap[venue] = collateral
	m.debtMap[venue] = debt
	m.principalMap[venue] = principal
	m.ltvMap[venue] = ltvBps
	m.healthFactorMap[venue] = healthFactor
	m.sharePriceMap[venue] = sharePrice
}

// SetDepegGuardOpen updates the depeg guard state gauge
func (m *MetricsHolder) SetDepegGuardOpen(asset string, open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if open {
		m.depegOpenMap[asset] = 1
	} else {
		m.depegOpenMap[asset] = 0
	}
}
