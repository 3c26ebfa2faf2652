package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// ParseFunc turns one line into an Action.
type ParseFunc[A any] func(line string) (A, error)

// FileSource emits one Action per line written to a file.
//
// Existing lines are emitted when watching starts. Later writes are read
// from the last offset; a partial last line waits for its newline. Blank
// lines and lines starting with '#' are skipped, and lines that fail to
// parse are logged and skipped. A file shorter than the offset is treated as
// truncated and re-read from the start.
type FileSource[A any] struct {
	path  string
	parse ParseFunc[A]
	log   *slog.Logger
}

// NewFileSource creates a FileSource for path.
func NewFileSource[A any](path string, parse ParseFunc[A]) *FileSource[A] {
	return &FileSource[A]{
		path:  path,
		parse: parse,
		log:   slog.Default(),
	}
}

// WithLogger sets the logger used for parse and read failures.
func (s *FileSource[A]) WithLogger(l *slog.Logger) *FileSource[A] {
	if l != nil {
		s.log = l
	}
	return s
}

// Watch starts watching and returns the Action stream. The stream closes when
// ctx ends or the watcher fails.
func (s *FileSource[A]) Watch(ctx context.Context) (<-chan A, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if err := watcher.Add(s.path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch file %s: %w", s.path, err)
	}

	out := make(chan A)

	go func() {
		defer close(out)
		defer watcher.Close()

		t := &tail{path: s.path}
		if !s.emit(ctx, out, t) {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if !s.emit(ctx, out, t) {
					return
				}

			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warn("file watcher error", "path", s.path, "error", werr)
			}
		}
	}()

	return out, nil
}

// emit sends every complete new line. Returns false if ctx ended.
func (s *FileSource[A]) emit(ctx context.Context, out chan<- A, t *tail) bool {
	lines, err := t.read()
	if err != nil {
		s.log.Warn("failed to read action file", "path", s.path, "error", err)
		return true
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		a, err := s.parse(line)
		if err != nil {
			s.log.Warn("skipping unparsable action", "path", s.path, "line", line, "error", err)
			continue
		}
		select {
		case out <- a:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// tail tracks how much of the file has been consumed.
type tail struct {
	path    string
	offset  int64
	partial []byte
}

func (t *tail) read() ([]string, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < t.offset {
		t.offset = 0
		t.partial = nil
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	t.offset += int64(len(data))

	buf := append(t.partial, data...)
	last := bytes.LastIndexByte(buf, '\n')
	if last < 0 {
		t.partial = buf
		return nil, nil
	}
	t.partial = append([]byte(nil), buf[last+1:]...)
	return strings.Split(string(buf[:last]), "\n"), nil
}
