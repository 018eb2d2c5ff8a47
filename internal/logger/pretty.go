// internal/logger/pretty.go
package logger

import (
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
)

// Colors for terminal output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// prettyEncoder is a colored console encoder with short timestamps and no caller.
func prettyEncoder() zapcore.Encoder {
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "time",
		NameKey:        "logger",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    colorLevelEncoder,
		EncodeTime:     shortTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	})
}

func colorLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(colorLevel(level))
}

func colorLevel(level zapcore.Level) string {
	switch level {
	case zapcore.DebugLevel:
		return fmt.Sprintf("%s[DEBUG]%s", colorCyan, colorReset)
	case zapcore.InfoLevel:
		return fmt.Sprintf("%s[INFO]%s", colorGreen, colorReset)
	case zapcore.WarnLevel:
		return fmt.Sprintf("%s[WARN]%s", colorYellow, colorReset)
	case zapcore.ErrorLevel:
		return fmt.Sprintf("%s[ERROR]%s", colorRed, colorReset)
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return fmt.Sprintf("%s[%s]%s", colorRed+colorBold, level.CapitalString(), colorReset)
	default:
		return fmt.Sprintf("[%s]", level.CapitalString())
	}
}

func shortTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("15:04:05"))
}
