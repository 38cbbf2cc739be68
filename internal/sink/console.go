package sink

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"towerbot/internal/record"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Console writes human readable lines:
//
//	2026-01-02T15:04:05.000Z INF [bot.commands] message key=value
type Console struct {
	level record.Level
	enc   *encoder
	cw    zerolog.ConsoleWriter
}

// ConsoleOptions configures a Console sink.
type ConsoleOptions struct {
	Out     io.Writer // default os.Stdout
	NoColor bool
}

func NewConsole(level record.Level, opt ConsoleOptions) *Console {
	out := opt.Out
	if out == nil {
		out = os.Stdout
	}
	cw := zerolog.ConsoleWriter{Out: out, TimeFormat: consoleTimeFormat, NoColor: opt.NoColor}
	cw.FormatLevel = func(i interface{}) string {
		s, _ := i.(string)
		return record.ParseLevel(s, record.LevelInfo).Short()
	}
	// The caller slot carries the logger name.
	cw.FormatCaller = func(i interface{}) string {
		s, _ := i.(string)
		if s == "" {
			return ""
		}
		return "[" + s + "]"
	}
	return &Console{level: level, enc: newEncoder(false, true), cw: cw}
}

func (c *Console) Name() string           { return "console" }
func (c *Console) MinLevel() record.Level { return c.level }
func (c *Console) Close() error           { return nil }

func (c *Console) Write(r record.Record) error {
	_, err := c.cw.Write(c.enc.Encode(r))
	return err
}
