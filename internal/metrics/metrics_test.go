package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestCollector_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.SetServices(4)
	c.ObserveInit("world", 20*time.Millisecond, nil)
	c.ObserveInit("fragments", time.Millisecond, io.ErrUnexpectedEOF)
	c.Highlight(OutcomeSelected)
	c.Highlight(OutcomeSelected)
	c.TreeRetry()
	c.Drop("registry")
	c.CacheLookup(true)
	c.CacheLookup(false)
	c.CacheLookup(false)

	require.Equal(t, 4.0, testutil.ToFloat64(c.Services))
	require.Equal(t, 0.0, testutil.ToFloat64(c.InitFailures.WithLabelValues("world")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.InitFailures.WithLabelValues("fragments")))
	require.Equal(t, 2.0, testutil.ToFloat64(c.Highlights.WithLabelValues(OutcomeSelected)))
	require.Equal(t, 1.0, testutil.ToFloat64(c.TreeRetries))
	require.Equal(t, 1.0, testutil.ToFloat64(c.Dropped.WithLabelValues("registry")))
	require.Equal(t, 2.0, testutil.ToFloat64(c.CacheLookups.WithLabelValues("miss")))
	require.EqualValues(t, 1, histogramCount(t, reg, "bimview_init_duration_seconds", "world"))
}

func TestNew_ReusesExisting(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := New(reg)
	require.NoError(t, err)
	b, err := New(reg)
	require.NoError(t, err)

	a.TreeRetry()
	require.Equal(t, 1.0, testutil.ToFloat64(b.TreeRetries))
}

func TestNew_IncompatibleType(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bimview_registered_services",
		Help: "Services currently held by the session registry.",
	}))
	_, err := New(reg)
	require.Error(t, err)
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	require.NotPanics(t, func() {
		c.SetServices(1)
		c.ObserveInit("x", time.Second, nil)
		c.Highlight(OutcomeCleared)
		c.TreeRetry()
		c.Drop("x")
		c.CacheLookup(true)
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)
	c.SetServices(2)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "bimview_registered_services 2"))
}

func histogramCount(t *testing.T, g prometheus.Gatherer, name, step string) uint64 {
	t.Helper()
	mfs, err := g.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if hasLabel(m.GetLabel(), "step", step) {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func hasLabel(pairs []*dto.LabelPair, name, value string) bool {
	for _, lp := range pairs {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}
