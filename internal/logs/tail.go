package logs

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"vawter.tech/stopper"
)

// DefaultPollInterval is the tail loop period when no file event arrives.
const DefaultPollInterval = 500 * time.Millisecond

// LogLine is one complete line appended to a tailed file.
type LogLine struct {
	File string `json:"file"`
	Line string `json:"line"`
}

// Session follows one file from offset 0 and emits every complete line.
// A partial trailing line is held back until its newline arrives.
type Session struct {
	ID   string
	Path string

	interval time.Duration
	emit     func(LogLine)
	log      *slog.Logger
	sctx     *stopper.Context

	offset  int64
	pending []byte
}

// NewSession prepares a session; nothing is read until Start.
func NewSession(path string, interval time.Duration, emit func(LogLine), log *slog.Logger) *Session {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		ID:       uuid.NewString(),
		Path:     path,
		interval: interval,
		emit:     emit,
		log:      log,
		sctx:     stopper.WithContext(context.Background()),
	}
}

// Start launches the tail goroutine. A session stopped before Start never runs.
func (s *Session) Start() {
	if s.sctx.IsStopping() {
		return
	}
	watcher := s.watch()
	if watcher != nil {
		s.sctx.Defer(func() { _ = watcher.Close() })
	}
	s.sctx.Go(func(sctx *stopper.Context) error {
		return s.run(sctx, watcher)
	})
}

// Stop cancels the session. It does not wait; see Wait.
func (s *Session) Stop() { s.sctx.Stop(0) }

// Stopping reports whether Stop has been called.
func (s *Session) Stopping() bool { return s.sctx.IsStopping() }

// Wait blocks until a stopped session's goroutine has returned.
func (s *Session) Wait() error { return s.sctx.Wait() }

func (s *Session) watch() *fsnotify.Watcher {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Debug("tail falls back to polling", "path", s.Path, "error", err)
		return nil
	}
	if err := w.Add(filepath.Dir(s.Path)); err != nil {
		_ = w.Close()
		s.log.Debug("tail falls back to polling", "path", s.Path, "error", err)
		return nil
	}
	return w
}

func (s *Session) run(sctx *stopper.Context, w *fsnotify.Watcher) error {
	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if w != nil {
		events, errs = w.Events, w.Errors
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.poll(sctx)
	for {
		select {
		case <-sctx.Stopping():
			return nil
		case <-ticker.C:
			s.poll(sctx)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) == filepath.Clean(s.Path) && ev.Has(fsnotify.Write) {
				s.poll(sctx)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.log.Debug("tail watcher error", "path", s.Path, "error", err)
		}
	}
}

// poll emits what was appended since the last offset. A file that shrank is
// left alone until it grows past the old offset again, and any partial line
// read before the truncation is dropped.
func (s *Session) poll(sctx *stopper.Context) {
	fi, err := os.Stat(s.Path)
	if err != nil {
		return
	}
	if fi.Size() < s.offset {
		s.pending = nil
	}
	if fi.Size() <= s.offset {
		return
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Seek(s.offset, io.SeekStart); err != nil {
		return
	}
	chunk, err := io.ReadAll(io.LimitReader(f, fi.Size()-s.offset))
	if err != nil {
		return
	}
	s.offset += int64(len(chunk))

	data := append(s.pending, chunk...)
	name := filepath.Base(s.Path)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		if sctx.IsStopping() {
			return
		}
		s.emit(LogLine{File: name, Line: strings.TrimSuffix(string(data[:i]), "\r")})
		data = data[i+1:]
	}
	s.pending = append([]byte(nil), data...)
}
