package observability

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// ZerologLogger adapts a zerolog.Logger to the Logger seam.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerolog builds a Logger writing structured JSON lines to w.
func NewZerolog(w io.Writer, level zerolog.Level) *ZerologLogger {
	if w == nil {
		w = os.Stderr
	}
	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return &ZerologLogger{logger: logger}
}

func (z *ZerologLogger) Debug(msg string, fields ...Field) {
	z.emit(z.logger.Debug(), msg, fields)
}

func (z *ZerologLogger) Info(msg string, fields ...Field) {
	z.emit(z.logger.Info(), msg, fields)
}

func (z *ZerologLogger) Warn(msg string, fields ...Field) {
	z.emit(z.logger.Warn(), msg, fields)
}

func (z *ZerologLogger) Error(msg string, fields ...Field) {
	z.emit(z.logger.Error(), msg, fields)
}

func (z *ZerologLogger) emit(evt *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			evt = evt.Str(f.Key, v)
		case int:
			evt = evt.Int(f.Key, v)
		case int64:
			evt = evt.Int64(f.Key, v)
		case bool:
			evt = evt.Bool(f.Key, v)
		case error:
			evt = evt.AnErr(f.Key, v)
		default:
			evt = evt.Interface(f.Key, v)
		}
	}
	evt.Msg(msg)
}
