// Package tail - reader.go follows a rotating access log.
//
// DESIGN: Reader produces an ordered, effectively infinite stream of
// parsed records from an append-only JSON-lines log:
//   - File identity is tracked via os.SameFile; when the path points at
//     a new file (rotation), reopen and resume from its start.
//   - Truncation (size below our offset) also resets to the start.
//   - At EOF the reader sleeps for the poll interval instead of
//     busy-spinning; cancellation comes from the context.
//   - A line that fails to parse is skipped and counted, never fatal.
//
// The stream is restartable only by process restart; detection state
// upstream assumes a single total order.
package tail

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/backendim/poolwatch/internal/metrics"
	"github.com/backendim/poolwatch/internal/monitor"
)

// DefaultPollInterval bounds alert latency while idle.
const DefaultPollInterval = 250 * time.Millisecond

// Config contains reader settings.
type Config struct {
	Path         string        `yaml:"path"`          // Access log path
	PollInterval time.Duration `yaml:"poll_interval"` // Sleep between EOF checks
	ReadExisting bool          `yaml:"read_existing"` // Replay current contents before tailing
}

// Stats counts reader activity. Safe to read concurrently.
type Stats struct {
	Lines   int64 // lines seen, including skipped
	Skipped int64 // lines dropped by the parser
	Reopens int64 // rotations and truncations handled
}

// Reader tails one access log and emits parsed records in file order.
type Reader struct {
	cfg Config

	file    *os.File
	info    os.FileInfo // identity of the open file
	offset  int64
	pending []byte // partial trailing line, waiting for its newline

	lines   atomic.Int64
	skipped atomic.Int64
	reopens atomic.Int64
}

// New creates a reader for the given log file.
func New(cfg Config) *Reader {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Reader{cfg: cfg}
}

// Stats returns a snapshot of reader counters.
func (r *Reader) Stats() Stats {
	return Stats{
		Lines:   r.lines.Load(),
		Skipped: r.skipped.Load(),
		Reopens: r.reopens.Load(),
	}
}

// Run tails the log until ctx is cancelled, calling emit for every
// parsed record in order. emit runs on Run's goroutine, so a slow emit
// delays reading but never reorders records. Returns ctx.Err() on
// cancellation; any other error means the log could not be opened.
func (r *Reader) Run(ctx context.Context, emit func(monitor.OutcomeRecord)) error {
	if err := r.waitForFile(ctx); err != nil {
		return err
	}
	if err := r.open(!r.cfg.ReadExisting); err != nil {
		return err
	}
	defer r.file.Close()

	log.Info().
		Str("path", r.cfg.Path).
		Bool("read_existing", r.cfg.ReadExisting).
		Msg("tail_started")

	buf := make([]byte, 64*1024)
	for {
		n, err := r.file.Read(buf)
		if n > 0 {
			r.offset += int64(n)
			r.consume(buf[:n], emit)
			continue
		}
		if err != nil && err != io.EOF {
			log.Error().Err(err).Str("path", r.cfg.Path).Msg("tail_read_failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.cfg.PollInterval):
		}

		if err := r.checkRollover(); err != nil {
			// Log temporarily missing mid-rotation; retry next poll.
			log.Debug().Err(err).Str("path", r.cfg.Path).Msg("tail_stat_failed")
		}
	}
}

// waitForFile blocks until the log file exists. The proxy may start
// after the watcher does.
func (r *Reader) waitForFile(ctx context.Context) error {
	for {
		if _, err := os.Stat(r.cfg.Path); err == nil {
			return nil
		}
		log.Info().Str("path", r.cfg.Path).Msg("tail_waiting_for_file")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

// open opens the log and records its identity. seekEnd skips existing
// contents so only new entries are reported.
func (r *Reader) open(seekEnd bool) error {
	f, err := os.Open(r.cfg.Path)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	r.offset = 0
	if seekEnd {
		if off, err := f.Seek(0, io.SeekEnd); err == nil {
			r.offset = off
		}
	}
	r.file = f
	r.info = info
	r.pending = r.pending[:0]
	return nil
}

// checkRollover detects rotation (path now names a different file) and
// truncation (file shrank below our offset). Both reopen from the start
// of whatever the path points at now.
func (r *Reader) checkRollover() error {
	info, err := os.Stat(r.cfg.Path)
	if err != nil {
		return err
	}
	rotated := !os.SameFile(r.info, info)
	truncated := !rotated && info.Size() < r.offset
	if !rotated && !truncated {
		return nil
	}

	reason := "rotated"
	if truncated {
		reason = "truncated"
	}
	log.Info().Str("path", r.cfg.Path).Str("reason", reason).Msg("tail_reopen")

	r.file.Close()
	r.reopens.Add(1)
	return r.open(false)
}

// consume splits a chunk into lines, buffering any trailing partial
// line until its newline arrives.
func (r *Reader) consume(chunk []byte, emit func(monitor.OutcomeRecord)) {
	data := chunk
	if len(r.pending) > 0 {
		data = append(r.pending, chunk...)
		r.pending = nil
	}
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		r.emitLine(bytes.TrimSpace(data[:idx]), emit)
		data = data[idx+1:]
	}
	if len(data) > 0 {
		r.pending = append([]byte(nil), data...)
	}
}

func (r *Reader) emitLine(line []byte, emit func(monitor.OutcomeRecord)) {
	if len(line) == 0 {
		return
	}
	r.lines.Add(1)
	rec, ok := parseLine(line)
	if !ok {
		r.skipped.Add(1)
		metrics.ObserveParseError()
		log.Debug().Str("path", r.cfg.Path).Msg("tail_line_skipped")
		return
	}
	emit(rec)
}
