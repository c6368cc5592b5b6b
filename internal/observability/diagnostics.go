package observability

import (
	"time"

	"github.com/apolmig/smartqr-backend/internal/pkg/logger"
)

// Diagnostics fronts the metrics and the operation log with one call per
// completed repository operation. Not needed for correctness, required for
// operability.
type Diagnostics struct {
	Metrics *Metrics
	Ops     *OperationLog
	log     *logger.Logger
}

func NewDiagnostics(baseLog *logger.Logger, metrics *Metrics, ops *OperationLog) *Diagnostics {
	return &Diagnostics{
		Metrics: metrics,
		Ops:     ops,
		log:     baseLog.With("component", "Diagnostics"),
	}
}

// Operation records one completed repository operation.
func (d *Diagnostics) Operation(op string, start time.Time, warnings []string, err error) {
	if d == nil {
		return
	}
	elapsed := time.Since(start)
	d.Metrics.ObserveOperation(op, elapsed, err)

	outcome := "ok"
	errMsg := ""
	if err != nil {
		outcome = "error"
		errMsg = err.Error()
	}
	d.Ops.Record(OperationEntry{
		Op:         op,
		Outcome:    outcome,
		Error:      errMsg,
		DurationMs: elapsed.Milliseconds(),
		Warnings:   warnings,
	})
}

// ReportAttempt satisfies retry.Reporter.
func (d *Diagnostics) ReportAttempt(op string, attempt int, elapsed time.Duration, err error) {
	if d == nil {
		return
	}
	d.Metrics.ReportAttempt(op, attempt, elapsed, err)
}

// Consistency records one post-write probe outcome.
func (d *Diagnostics) Consistency(probe string, consistent bool, attempts int) {
	if d == nil {
		return
	}
	d.Metrics.ObserveConsistency(probe, consistent, attempts)
	if !consistent {
		d.log.Warn("consistency verification timed out", "probe", probe, "attempts", attempts)
	}
}
