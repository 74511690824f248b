// Package logger builds the zerolog root logger and carries per-request log
// fields (request id, component, warehouse, zone) through context.Context.
package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level     string
	Console   bool
	SampleN   int
	Component string
}

// Fields are the values attached to every line logged under a context.
type Fields struct {
	RequestID string
	Component string
	Warehouse string
	Zone      string
}

type fieldsKey struct{}

// FieldsFrom returns the log fields stored in ctx, zero if none.
func FieldsFrom(ctx context.Context) Fields {
	f, _ := ctx.Value(fieldsKey{}).(Fields)
	return f
}

func with(ctx context.Context, set func(*Fields)) context.Context {
	f := FieldsFrom(ctx)
	set(&f)
	return context.WithValue(ctx, fieldsKey{}, f)
}

// WithRequestID stores reqID, generating one when empty.
func WithRequestID(ctx context.Context, reqID string) context.Context {
	if reqID == "" {
		reqID = NewID()
	}
	return with(ctx, func(f *Fields) { f.RequestID = reqID })
}

func WithComponent(ctx context.Context, component string) context.Context {
	if component == "" {
		return ctx
	}
	return with(ctx, func(f *Fields) { f.Component = component })
}

// WithWarehouse tags log lines emitted under ctx with the warehouse being worked on.
func WithWarehouse(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return with(ctx, func(f *Fields) { f.Warehouse = id })
}

func WithZone(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return with(ctx, func(f *Fields) { f.Zone = id })
}

// NewID returns 16 random hex characters.
func NewID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// ParseLevel maps a config level to zerolog, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "warning":
		return zerolog.WarnLevel
	case "", "trace", "fatal", "panic", "disabled":
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// Build configures zerolog globals and returns the root logger writing to out
// (stdout when nil).
func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.MessageFieldName = "msg"
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(out)
	if cfg.SampleN > 1 {
		n := uint32(math.MaxUint32)
		if uint64(cfg.SampleN) < math.MaxUint32 {
			n = uint32(cfg.SampleN)
		}
		zl = zl.Sample(&zerolog.BasicSampler{N: n})
	}

	c := zl.With().Timestamp()
	if cfg.Component != "" {
		c = c.Str("component", cfg.Component)
	}
	return c.Logger()
}

// FromContext returns parent (or a discard logger) with the context's fields applied.
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	base := zerolog.Nop()
	if parent != nil {
		base = *parent
	}
	f := FieldsFrom(ctx)
	if f == (Fields{}) {
		return &base
	}
	c := base.With()
	for _, kv := range [...][2]string{
		{"request_id", f.RequestID},
		{"component", f.Component},
		{"warehouse", f.Warehouse},
		{"zone", f.Zone},
	} {
		if kv[1] != "" {
			c = c.Str(kv[0], kv[1])
		}
	}
	l := c.Logger()
	return &l
}
