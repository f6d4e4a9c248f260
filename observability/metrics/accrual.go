package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// AccrualMetrics instruments the reward-accrual ledger.
type AccrualMetrics struct {
	daysFinalized    prometheus.Counter
	lastFinalizedDay prometheus.Gauge
	contributions    *prometheus.CounterVec
	claimsSettled    *prometheus.CounterVec
	buybackWithdrawn prometheus.Counter
	referralCodes    prometheus.Counter
}

var (
	accrualOnce     sync.Once
	accrualRegistry *AccrualMetrics
)

func Accrual() *AccrualMetrics {
	accrualOnce.Do(func() {
		accrualRegistry = &AccrualMetrics{
			daysFinalized: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "accrual_days_finalized_total",
				Help: "Count of accrual days finalized by the tick engine.",
			}),
			lastFinalizedDay: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "accrual_last_finalized_day",
				Help: "Index one past the most recently finalized accrual day.",
			}),
			contributions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "accrual_contributions_total",
				Help: "Count of recorded contributions by referral attribution.",
			}, []string{"referred"}),
			claimsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "accrual_claims_settled_total",
				Help: "Count of settled reward claims by stream.",
			}, []string{"stream"}),
			buybackWithdrawn: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "accrual_buyback_withdrawals_total",
				Help: "Count of buyback balance withdrawals.",
			}),
			referralCodes: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "accrual_referral_codes_assigned_total",
				Help: "Count of referral codes assigned to participants.",
			}),
		}
		prometheus.MustRegister(
			accrualRegistry.daysFinalized,
			accrualRegistry.lastFinalizedDay,
			accrualRegistry.contributions,
			accrualRegistry.claimsSettled,
			accrualRegistry.buybackWithdrawn,
			accrualRegistry.referralCodes,
		)
	})
	return accrualRegistry
}

func (m *AccrualMetrics) ObserveDayFinalized() {
	if m == nil {
		return
	}
	m.daysFinalized.Inc()
}

func (m *AccrualMetrics) SetLastFinalizedDay(day uint64) {
	if m == nil {
		return
	}
	m.lastFinalizedDay.Set(float64(day))
}

func (m *AccrualMetrics) ObserveContribution(referred bool) {
	if m == nil {
		return
	}
	label := "false"
	if referred {
		label = "true"
	}
	m.contributions.WithLabelValues(label).Inc()
}

func (m *AccrualMetrics) ObserveClaimSettled(stream string) {
	if m == nil {
		return
	}
	if stream == "" {
		stream = "unknown"
	}
	m.claimsSettled.WithLabelValues(stream).Inc()
}

func (m *AccrualMetrics) ObserveBuybackWithdrawn() {
	if m == nil {
		return
	}
	m.buybackWithdrawn.Inc()
}

func (m *AccrualMetrics) ObserveReferralCodeAssigned() {
	if m == nil {
		return
	}
	m.referralCodes.Inc()
}
