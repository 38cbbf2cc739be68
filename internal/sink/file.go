package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"towerbot/internal/record"
)

const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 10
)

// RotationConfig controls size based rotation of a file sink.
type RotationConfig struct {
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

func (c RotationConfig) withDefaults() RotationConfig {
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = DefaultMaxSizeMB
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = DefaultMaxBackups
	}
	return c
}

// NewRotatingWriter opens a lumberjack writer for path, creating its
// directory. The file itself is created on first write.
func NewRotatingWriter(path string, rc RotationConfig) (*lumberjack.Logger, error) {
	rc = rc.withDefaults()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("log dir: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rc.MaxSizeMB,
		MaxBackups: rc.MaxBackups,
		Compress:   rc.Compress,
	}, nil
}

// File appends JSON lines to a size-rotated file.
type File struct {
	name  string
	path  string
	level record.Level
	enc   *encoder

	mu sync.Mutex
	w  *lumberjack.Logger
}

// NewFile creates a file sink named name writing to path.
func NewFile(name, path string, level record.Level, rc RotationConfig) (*File, error) {
	w, err := NewRotatingWriter(path, rc)
	if err != nil {
		return nil, err
	}
	return &File{name: name, path: path, level: level, enc: newEncoder(true, false), w: w}, nil
}

func (f *File) Name() string           { return f.name }
func (f *File) MinLevel() record.Level { return f.level }

// Path returns the active file name.
func (f *File) Path() string { return f.path }

func (f *File) Write(r record.Record) error {
	line := f.enc.Encode(r)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.w == nil {
		return ErrClosed
	}
	_, err := f.w.Write(line)
	return err
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.w == nil {
		return nil
	}
	err := f.w.Close()
	f.w = nil
	return err
}
