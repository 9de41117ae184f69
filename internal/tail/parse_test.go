package tail

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine_ValidRecord(t *testing.T) {
	line := []byte(`{"timestamp":"2025-06-01T12:00:00Z","pool":"blue","status":502,"request_id":"req-1","latency_ms":132.5,"upstream_addr":"10.0.0.5:8080"}`)

	rec, ok := parseLine(line)
	require.True(t, ok)
	assert.Equal(t, "blue", rec.Pool)
	assert.Equal(t, 502, rec.Status)
	assert.Equal(t, "req-1", rec.RequestID)
	assert.InDelta(t, 132.5, rec.LatencyMs, 1e-9)
	assert.Equal(t, "10.0.0.5:8080", rec.UpstreamAddr)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), rec.Timestamp.UTC())
	assert.True(t, rec.IsError())
}

func TestParseLine_StatusAsString(t *testing.T) {
	// nginx escape=json logs numbers as strings depending on the format.
	rec, ok := parseLine([]byte(`{"pool":"green","status":"200"}`))
	require.True(t, ok)
	assert.Equal(t, 200, rec.Status)
	assert.False(t, rec.IsError())
}

func TestParseLine_EpochTimestamp(t *testing.T) {
	rec, ok := parseLine([]byte(`{"pool":"green","status":200,"timestamp":1748779200}`))
	require.True(t, ok)
	assert.Equal(t, int64(1748779200), rec.Timestamp.Unix())
}

func TestParseLine_SkipsMalformedAndPoolless(t *testing.T) {
	for _, line := range []string{
		`not json at all`,
		`{"pool":`,
		`{"status":200}`,
		`{"pool":"-","status":200}`,
		`{"pool":"unknown","status":200}`,
		`{"pool":"","status":200}`,
	} {
		_, ok := parseLine([]byte(line))
		assert.False(t, ok, "line %q should be skipped", line)
	}
}

func TestParseLine_MissingTimestampGetsReadTime(t *testing.T) {
	before := time.Now()
	rec, ok := parseLine([]byte(`{"pool":"blue","status":200}`))
	require.True(t, ok)
	assert.False(t, rec.Timestamp.Before(before))
}
