// Package tail - parse.go turns raw access-log lines into records.
package tail

import (
	"time"

	"github.com/tidwall/gjson"

	"github.com/backendim/poolwatch/internal/monitor"
)

// parseLine parses one JSON access-log line. Returns false for lines
// that must be skipped: invalid JSON, or entries with no usable pool
// (nginx writes "-" when no upstream served the request).
//
// The proxy may log status as either a number or a string; gjson's Int
// coercion accepts both.
func parseLine(line []byte) (monitor.OutcomeRecord, bool) {
	if !gjson.ValidBytes(line) {
		return monitor.OutcomeRecord{}, false
	}
	doc := gjson.ParseBytes(line)

	pool := doc.Get("pool").String()
	switch pool {
	case "", "-", "unknown":
		return monitor.OutcomeRecord{}, false
	}

	rec := monitor.OutcomeRecord{
		Pool:         pool,
		Status:       int(doc.Get("status").Int()),
		RequestID:    doc.Get("request_id").String(),
		LatencyMs:    doc.Get("latency_ms").Float(),
		UpstreamAddr: doc.Get("upstream_addr").String(),
		Timestamp:    parseTimestamp(doc.Get("timestamp")),
	}
	return rec, true
}

// parseTimestamp accepts RFC3339 or epoch seconds. Entries without a
// usable timestamp get the read time; the engine's cooldown clock does
// not depend on record timestamps.
func parseTimestamp(v gjson.Result) time.Time {
	if v.Type == gjson.String {
		if ts, err := time.Parse(time.RFC3339, v.String()); err == nil {
			return ts
		}
	}
	if v.Type == gjson.Number {
		sec := v.Float()
		return time.Unix(int64(sec), int64((sec-float64(int64(sec)))*1e9))
	}
	return time.Now()
}
