package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/flapvw/vlinker-go/pkg/metrics"
)

func TestObserveTransactionIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(metrics.TransactionsTotal.WithLabelValues("ok"))
	metrics.ObserveTransaction("ok", 5*time.Millisecond)
	after := testutil.ToFloat64(metrics.TransactionsTotal.WithLabelValues("ok"))
	assert.Equal(t, before+1, after)
}
