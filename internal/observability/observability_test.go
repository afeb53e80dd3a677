package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsForTesting_Independent(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()

	a.FetchAttempts.WithLabelValues("lyr", "ok").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.FetchAttempts.WithLabelValues("lyr", "ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.FetchAttempts.WithLabelValues("lyr", "ok")))
}
