package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Run("Should count per label", func(t *testing.T) {
		m, err := New(prometheus.NewRegistry())
		require.NoError(t, err)

		m.Hit("tokens")
		m.Hit("tokens")
		m.Miss("tokens")
		m.Error("tokens", "get")
		m.Chunk("safe keyword")

		assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheHits.WithLabelValues("tokens")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses.WithLabelValues("tokens")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheErrors.WithLabelValues("tokens", "get")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Chunks.WithLabelValues("safe keyword")))
	})

	t.Run("Should reject double registration", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		_, err := New(reg)
		require.NoError(t, err)
		_, err = New(reg)
		assert.Error(t, err)
	})

	t.Run("Should tolerate nil receiver", func(t *testing.T) {
		var m *Metrics
		assert.NotPanics(t, func() {
			m.Hit("x")
			m.Miss("x")
			m.Error("x", "set")
			m.Chunk("end of text")
		})
	})
}
