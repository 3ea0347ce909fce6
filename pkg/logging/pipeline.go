package logging

import (
	"io"
	"log/slog"
	"os"
)

// Options configures the full logging pipeline.
type Options struct {
	// Console receives human-oriented text output at ConsoleLevel. Nil disables it.
	Console      io.Writer
	ConsoleLevel slog.Level

	// FilePath enables the rotating log file when non-empty.
	FilePath   string
	MaxAgeDays int
	// Echo mirrors log file lines to stdout.
	Echo bool

	// RingSize keeps that many recent records in memory when positive.
	RingSize int
}

// Pipeline owns the handlers built from Options.
type Pipeline struct {
	Rotator *Rotator
	Ring    *RingHandler
	handler slog.Handler
}

// NewPipeline builds the handlers. File and ring output always record Info
// and above, independent of the console verbosity.
func NewPipeline(opts Options) (*Pipeline, error) {
	p := &Pipeline{}
	var handlers []slog.Handler

	if opts.Console != nil {
		handlers = append(handlers, slog.NewTextHandler(opts.Console, &slog.HandlerOptions{Level: opts.ConsoleLevel}))
	}

	if opts.FilePath != "" {
		rot, err := NewRotator(opts.FilePath, RotatorOptions{MaxAgeDays: opts.MaxAgeDays})
		if err != nil {
			return nil, err
		}
		p.Rotator = rot
		var w io.Writer = rot
		if opts.Echo {
			w = io.MultiWriter(rot, os.Stdout)
		}
		handlers = append(handlers, NewFileHandler(w, slog.LevelInfo))
	}

	if opts.RingSize > 0 {
		p.Ring = NewRingHandler(opts.RingSize, slog.LevelInfo)
		handlers = append(handlers, p.Ring)
	}

	p.handler = NewFanout(handlers...)
	return p, nil
}

// Handler returns the combined handler.
func (p *Pipeline) Handler() slog.Handler {
	return p.handler
}

// Logger returns a logger over the combined handler.
func (p *Pipeline) Logger() *slog.Logger {
	return slog.New(p.handler)
}

// Close releases the log file.
func (p *Pipeline) Close() error {
	if p.Rotator == nil {
		return nil
	}
	return p.Rotator.Close()
}
