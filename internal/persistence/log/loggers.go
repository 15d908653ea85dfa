package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"

	"citycore/internal/sim/world"
)

// ErrQueueFull is returned when an async logger cannot keep up. The entry is
// dropped and counted.
var ErrQueueFull = errors.New("log queue full")

const defaultQueueSize = 4096

// JSONLZstdWriter appends JSON lines to hourly zstd files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// asyncWriter moves file IO off the tick loop. Enqueue never blocks.
type asyncWriter struct {
	w  *JSONLZstdWriter
	ch chan any

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

func newAsyncWriter(w *JSONLZstdWriter, size int) *asyncWriter {
	if size <= 0 {
		size = defaultQueueSize
	}
	a := &asyncWriter{w: w, ch: make(chan any, size), done: make(chan struct{})}
	go a.loop()
	return a
}

func (a *asyncWriter) loop() {
	defer close(a.done)
	for v := range a.ch {
		if err := a.w.Write(v); err != nil {
			a.failed.Add(1)
			continue
		}
		a.written.Add(1)
	}
}

func (a *asyncWriter) enqueue(v any) error {
	select {
	case a.ch <- v:
		return nil
	default:
		a.dropped.Add(1)
		return ErrQueueFull
	}
}

// Close drains what is queued and closes the current file.
func (a *asyncWriter) Close() error {
	a.closeOnce.Do(func() { close(a.ch) })
	<-a.done
	return a.w.Close()
}

type Stats struct {
	Written uint64
	Dropped uint64
	Failed  uint64
}

func (a *asyncWriter) Stats() Stats {
	return Stats{Written: a.written.Load(), Dropped: a.dropped.Load(), Failed: a.failed.Load()}
}

// TickLogger writes one JSONL entry per tick (compressed).
type TickLogger struct{ *asyncWriter }

func NewTickLogger(worldDir string) *TickLogger {
	return &TickLogger{newAsyncWriter(NewJSONLZstdWriter(EventsDir(worldDir), "events"), defaultQueueSize)}
}

func (l *TickLogger) WriteTick(v world.TickLogEntry) error { return l.enqueue(v) }

// AuditLogger writes audit JSONL entries (compressed).
type AuditLogger struct{ *asyncWriter }

func NewAuditLogger(worldDir string) *AuditLogger {
	return &AuditLogger{newAsyncWriter(NewJSONLZstdWriter(filepath.Join(worldDir, "audit"), "audit"), defaultQueueSize)}
}

func (l *AuditLogger) WriteAudit(v world.AuditEntry) error { return l.enqueue(v) }

func EventsDir(worldDir string) string { return filepath.Join(worldDir, "events") }

// ListFiles returns the <prefix>-*.jsonl.zst files in dir, oldest first.
func ListFiles(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ScanJSONL calls fn for every line of a compressed JSONL file.
func ScanJSONL(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		if err := fn(sc.Bytes()); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	return sc.Err()
}

// ReadTicks replays every tick entry under the events dir in file order.
func ReadTicks(eventsDir string, fn func(world.TickLogEntry) error) error {
	files, err := ListFiles(eventsDir, "events")
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no events files found in %s", eventsDir)
	}
	for _, path := range files {
		err := ScanJSONL(path, func(line []byte) error {
			var entry world.TickLogEntry
			if err := json.Unmarshal(line, &entry); err != nil {
				return fmt.Errorf("unmarshal: %w", err)
			}
			return fn(entry)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
