package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectInflight(t *testing.T) {
	db, mock := redismock.NewClientMock()
	m := NewMonitor(db)

	mock.ExpectScan(0, InflightKeyPattern, 100).SetVal([]string{"submission:inflight:application:ev1:u1", "submission:inflight:ticket:s1:u2"}, 7)
	mock.ExpectScan(7, InflightKeyPattern, 100).SetVal([]string{"submission:inflight:application:ev2:u3"}, 0)

	require.NoError(t, m.CollectInflight(context.Background()))
	assert.Equal(t, 3.0, testutil.ToFloat64(inflightSubmissions))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCollectInflight_RedisError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	m := NewMonitor(db)

	mock.ExpectScan(0, InflightKeyPattern, 100).SetErr(errors.New("connection refused"))
	assert.Error(t, m.CollectInflight(context.Background()))
}

func TestRun_NoRedisReturns(t *testing.T) {
	done := make(chan struct{})
	go func() {
		NewMonitor(nil).Run(context.Background(), time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run without redis must return immediately")
	}
}

func TestRun_StopsWithContext(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 50; i++ {
		mock.ExpectScan(0, InflightKeyPattern, 100).SetVal(nil, 0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		NewMonitor(db).Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after the context ended")
	}
}

func TestTrackers(t *testing.T) {
	var m *Monitor

	before := testutil.ToFloat64(submissions.WithLabelValues("ticket", "conflict"))
	m.TrackSubmission("ticket", "conflict")
	assert.Equal(t, before+1, testutil.ToFloat64(submissions.WithLabelValues("ticket", "conflict")))

	before = testutil.ToFloat64(integrityViolations.WithLabelValues("payment_target"))
	m.RecordIntegrity("payment_target")
	assert.Equal(t, before+1, testutil.ToFloat64(integrityViolations.WithLabelValues("payment_target")))

	before = testutil.ToFloat64(ticketClaims.WithLabelValues("already_claimed"))
	m.TrackTicketClaim("already_claimed")
	assert.Equal(t, before+1, testutil.ToFloat64(ticketClaims.WithLabelValues("already_claimed")))

	before = testutil.ToFloat64(voucherRedemptions.WithLabelValues("event"))
	m.TrackVoucherRedemption("event")
	assert.Equal(t, before+1, testutil.ToFloat64(voucherRedemptions.WithLabelValues("event")))

	before = testutil.ToFloat64(reconciliations.WithLabelValues("paid"))
	m.TrackReconciliation("paid")
	assert.Equal(t, before+1, testutil.ToFloat64(reconciliations.WithLabelValues("paid")))

	m.ObserveGateway("online", "create_checkout", 120*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(gatewayDuration))
}
