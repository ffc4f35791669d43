package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRegisterOnOwnRegistry(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	// A second set on a fresh registry must not collide.
	other := NewMetrics(prometheus.NewRegistry())

	m.IncPages("ok")
	m.IncPages("ok")
	m.IncPages("failed")
	m.IncRefresh("alive")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PagesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PagesTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshTotal.WithLabelValues("alive")))
	assert.Zero(t, testutil.ToFloat64(other.PagesTotal.WithLabelValues("ok")))
}
