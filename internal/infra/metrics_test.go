package infra

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SubmissionSigned(20 * time.Millisecond)
	m.SubmissionRejected("crypto_unavailable")
	m.SubmissionRejected("crypto_unavailable")
	m.SubmissionRejected("form_unavailable")
	m.SigningKeyRotated()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.rejected.WithLabelValues("crypto_unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejected.WithLabelValues("form_unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rotated))

	n, err := testutil.GatherAndCount(reg, "formularium_submission_signing_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
