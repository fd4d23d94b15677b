// Package log writes and reads the compressed JSONL records a session leaves
// behind: one step entry per tick and the arc transitions between them.
package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"storylet.ai/internal/sim/director"
)

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

// StepLogger writes one JSONL entry per director step, stamped with the
// session id. It satisfies director.StepLogger.
type StepLogger struct {
	w       *JSONLZstdWriter
	session string
}

func NewStepLogger(sessionDir, sessionID string) *StepLogger {
	return &StepLogger{w: NewJSONLZstdWriter(filepath.Join(sessionDir, "steps"), "steps"), session: sessionID}
}

func (l *StepLogger) WriteStep(e director.LogEntry) error {
	e.Session = l.session
	return l.w.Write(e)
}

func (l *StepLogger) Close() error { return l.w.Close() }

// ArcLogger writes pressure and milestone transitions.
type ArcLogger struct {
	w       *JSONLZstdWriter
	session string
}

func NewArcLogger(sessionDir, sessionID string) *ArcLogger {
	return &ArcLogger{w: NewJSONLZstdWriter(filepath.Join(sessionDir, "arcs"), "arcs"), session: sessionID}
}

func (l *ArcLogger) WriteArc(e director.ArcEvent) error {
	e.Session = l.session
	return l.w.Write(e)
}

func (l *ArcLogger) Close() error { return l.w.Close() }
