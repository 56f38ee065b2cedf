package monitoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// InflightKeyPattern matches the submission guard keys held in Redis.
const InflightKeyPattern = "submission:inflight:*"

var (
	submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submissions_total",
			Help: "Application and ticket submissions by result",
		},
		[]string{"kind", "result"},
	)

	voucherRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voucher_redemptions_total",
			Help: "Voucher redemptions per target type",
		},
		[]string{"target_type"},
	)

	ticketClaims = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_claims_total",
			Help: "Ticket claim attempts by result",
		},
		[]string{"result"},
	)

	integrityViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integrity_violations_total",
			Help: "Backend inconsistencies detected while serving requests",
		},
		[]string{"source"},
	)

	reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_reconciliations_total",
			Help: "Payment status updates applied from gateway notifications",
		},
		[]string{"status"},
	)

	gatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Latency of checkout gateway calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"provider", "operation"},
	)

	inflightSubmissions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inflight_submissions_total",
			Help: "Submissions currently holding a guard key",
		},
	)
)

// Monitor records domain metrics. The tracking methods only touch the
// package collectors, so a nil *Monitor is usable.
type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	return &Monitor{redis: redisClient}
}

// Run refreshes Redis-derived gauges every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if m == nil || m.redis == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.CollectInflight(ctx); err != nil {
				slog.Warn("collect inflight submissions", "error", err)
			}
		}
	}
}

// CollectInflight counts live guard keys.
func (m *Monitor) CollectInflight(ctx context.Context) error {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := m.redis.Scan(ctx, cursor, InflightKeyPattern, 100).Result()
		if err != nil {
			return err
		}
		total += len(keys)
		if next == 0 {
			break
		}
		cursor = next
	}
	inflightSubmissions.Set(float64(total))
	return nil
}

func (m *Monitor) TrackSubmission(kind, result string) {
	submissions.WithLabelValues(kind, result).Inc()
}

func (m *Monitor) TrackVoucherRedemption(targetType string) {
	voucherRedemptions.WithLabelValues(targetType).Inc()
}

func (m *Monitor) TrackTicketClaim(result string) {
	ticketClaims.WithLabelValues(result).Inc()
}

// RecordIntegrity counts an integrity violation. Callers log the details.
func (m *Monitor) RecordIntegrity(source string) {
	integrityViolations.WithLabelValues(source).Inc()
}

func (m *Monitor) TrackReconciliation(status string) {
	reconciliations.WithLabelValues(status).Inc()
}

func (m *Monitor) ObserveGateway(provider, operation string, d time.Duration) {
	gatewayDuration.WithLabelValues(provider, operation).Observe(d.Seconds())
}
