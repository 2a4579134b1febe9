package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/felixgeelhaar/speckeeper/internal/errors"
)

func TestObserveAttempt(t *testing.T) {
	_, m := NewRegistry()

	m.ObserveAttempt(OutcomeArchived, 200*time.Millisecond)
	m.ObserveAttempt(OutcomeArchived, time.Second)
	m.ObserveAttempt(OutcomeSkipped, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ArchivalAttempts.WithLabelValues(OutcomeArchived)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArchivalAttempts.WithLabelValues(OutcomeSkipped)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ArchivalDuration))
}

func TestCopiedAndRollbacks(t *testing.T) {
	_, m := NewRegistry()

	m.AddCopied(3, 1024)
	m.AddCopied(1, 10)
	m.ObserveRollback("verifying")

	assert.Equal(t, 4.0, testutil.ToFloat64(m.FilesCopied))
	assert.Equal(t, 1034.0, testutil.ToFloat64(m.BytesCopied))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rollbacks.WithLabelValues("verifying")))
}

func TestRepairsAndSpecCounts(t *testing.T) {
	_, m := NewRegistry()

	m.ObserveRepair(2, 1)
	m.SetSpecCounts(5, 3, 2, 1)
	m.SetSpecCounts(4, 2, 2, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.IndexRepairs.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexRepairs.WithLabelValues("missing")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Specs.WithLabelValues("total")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Specs.WithLabelValues("invalid")))
}

func TestRecordError(t *testing.T) {
	_, m := NewRegistry()

	m.RecordError(errors.NewIntegrityError("size mismatch"), "archive")
	m.RecordError(fmt.Errorf("plain"), "archive")
	m.RecordError(nil, "archive")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues(string(errors.ErrCodeArchiveIntegrity), "archive")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("unknown", "archive")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAttempt(OutcomeFailed, time.Second)
		m.ObserveRollback("copying")
		m.AddCopied(1, 1)
		m.ObserveRepair(1, 1)
		m.SetSpecCounts(1, 1, 1, 1)
		m.RecordError(errors.NewFileNotFoundError("x"), "scan")
	})
}
