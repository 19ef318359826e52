package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// SlowQueryThreshold is the duration after which a store query is logged at Warn.
const SlowQueryThreshold = 2 * time.Second

// OperationTimer returns a func that logs the elapsed time of operation when
// called, at Warn once it exceeds slowAfter. A zero slowAfter never warns.
//
//	defer utils.OperationTimer("optimization_run", time.Minute, log)()
func OperationTimer(operation string, slowAfter time.Duration, log zerolog.Logger) func() time.Duration {
	start := time.Now()

	return func() time.Duration {
		elapsed := time.Since(start)

		event := log.Debug()
		msg := "Operation completed"
		if slowAfter > 0 && elapsed > slowAfter {
			event = log.Warn().Dur("threshold", slowAfter)
			msg = "Slow operation"
		}
		event.Str("operation", operation).Dur("duration_ms", elapsed).Msg(msg)

		return elapsed
	}
}

// MeasureDBQuery times a price store query; pass the number of rows read or
// written to the returned func.
func MeasureDBQuery(queryName string, log zerolog.Logger) func(rows int64) {
	start := time.Now()

	return func(rows int64) {
		elapsed := time.Since(start)

		event := log.Debug()
		msg := "Database query completed"
		if elapsed > SlowQueryThreshold {
			event = log.Warn()
			msg = "Slow database query"
		}
		event.Str("query", queryName).Dur("duration_ms", elapsed).Int64("rows", rows).Msg(msg)
	}
}
