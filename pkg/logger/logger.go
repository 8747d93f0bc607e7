package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// LogLevel represents the logging verbosity level
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// DebugCategory represents specific debug categories for targeted debugging
type DebugCategory string

const (
	DebugRTSP     DebugCategory = "rtsp"
	DebugRTCP     DebugCategory = "rtcp"
	DebugNAL      DebugCategory = "nal"
	DebugDecode   DebugCategory = "decode"
	DebugStream   DebugCategory = "stream"
	DebugMatch    DebugCategory = "match"
	DebugTimeEcho DebugCategory = "timeecho"
	DebugStatus   DebugCategory = "status"
	DebugAll      DebugCategory = "all"
)

var allCategories = []DebugCategory{
	DebugRTSP, DebugRTCP, DebugNAL, DebugDecode, DebugStream, DebugMatch, DebugTimeEcho, DebugStatus,
}

// OutputFormat determines the log output format
type OutputFormat string

const (
	FormatJSON OutputFormat = "json"
	FormatText OutputFormat = "text"
)

// Config holds logger configuration
type Config struct {
	Level             LogLevel
	Format            OutputFormat
	OutputFile        string
	EnabledCategories map[DebugCategory]bool
	mu                sync.RWMutex
}

// NewConfig creates a new logger configuration with defaults
func NewConfig() *Config {
	return &Config{
		Level:             LevelInfo,
		Format:            FormatText,
		OutputFile:        "",
		EnabledCategories: make(map[DebugCategory]bool),
	}
}

// ParseLevel converts a string to LogLevel
func ParseLevel(level string) (LogLevel, error) {
	switch level {
	case "debug", "DEBUG":
		return LevelDebug, nil
	case "info", "INFO":
		return LevelInfo, nil
	case "warn", "WARN", "warning", "WARNING":
		return LevelWarn, nil
	case "error", "ERROR":
		return LevelError, nil
	default:
		return "", fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}
}

// ParseFormat converts a string to OutputFormat
func ParseFormat(format string) (OutputFormat, error) {
	switch format {
	case "json", "JSON":
		return FormatJSON, nil
	case "text", "TEXT":
		return FormatText, nil
	default:
		return "", fmt.Errorf("invalid log format: %s (must be json or text)", format)
	}
}

// toZerologLevel converts LogLevel to zerolog.Level
func (l LogLevel) toZerologLevel() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// EnableCategory enables a specific debug category
func (c *Config) EnableCategory(category DebugCategory) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if category == DebugAll {
		for _, cat := range allCategories {
			c.EnabledCategories[cat] = true
		}
		return
	}
	c.EnabledCategories[category] = true
}

// IsCategoryEnabled checks if a debug category is enabled
func (c *Config) IsCategoryEnabled(category DebugCategory) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.EnabledCategories[category]
}

// IsDebugEnabled checks if any debug category is enabled
func (c *Config) IsDebugEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.EnabledCategories) > 0
}

// Logger wraps zerolog.Logger with category-gated debug helpers
type Logger struct {
	Logger zerolog.Logger
	config *Config
	file   *os.File
}

// New creates a new Logger instance with the given configuration
func New(cfg *Config) (*Logger, error) {
	var writer io.Writer = os.Stdout
	var file *os.File

	if cfg.OutputFile != "" {
		f, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.OutputFile, err)
		}
		writer = f
		file = f
	}

	if cfg.Format == FormatText {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: "15:04:05"}
	}

	zl := zerolog.New(writer).Level(cfg.Level.toZerologLevel()).With().Timestamp().Logger()

	return &Logger{Logger: zl, config: cfg, file: file}, nil
}

// Close closes the log file if one was opened
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func applyFields(e *zerolog.Event, args []any) *zerolog.Event {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", args[i])
		}
		e = e.Interface(key, args[i+1])
	}
	return e
}

func (l *Logger) Debug(msg string, args ...any) { applyFields(l.Logger.Debug(), args).Msg(msg) }
func (l *Logger) Info(msg string, args ...any)  { applyFields(l.Logger.Info(), args).Msg(msg) }
func (l *Logger) Warn(msg string, args ...any)  { applyFields(l.Logger.Warn(), args).Msg(msg) }
func (l *Logger) Error(msg string, args ...any) { applyFields(l.Logger.Error(), args).Msg(msg) }

func (l *Logger) categoryDebug(cat DebugCategory, msg string, args ...any) {
	if l.config.IsCategoryEnabled(cat) {
		args = append([]any{"category", string(cat)}, args...)
		l.Debug(msg, args...)
	}
}

// DebugRTSP logs RTSP protocol details if rtsp debugging is enabled
func (l *Logger) DebugRTSP(msg string, args ...any) { l.categoryDebug(DebugRTSP, msg, args...) }

// DebugRTCP logs RTCP sender-report details if rtcp debugging is enabled
func (l *Logger) DebugRTCP(msg string, args ...any) { l.categoryDebug(DebugRTCP, msg, args...) }

// DebugNAL logs NAL unit details if nal debugging is enabled
func (l *Logger) DebugNAL(msg string, args ...any) { l.categoryDebug(DebugNAL, msg, args...) }

// DebugDecode logs sensor-sample decode details if decode debugging is enabled
func (l *Logger) DebugDecode(msg string, args ...any) { l.categoryDebug(DebugDecode, msg, args...) }

// DebugStream logs stream-manager lifecycle details if stream debugging is enabled
func (l *Logger) DebugStream(msg string, args ...any) { l.categoryDebug(DebugStream, msg, args...) }

// DebugMatch logs cross-stream matching details if match debugging is enabled
func (l *Logger) DebugMatch(msg string, args ...any) { l.categoryDebug(DebugMatch, msg, args...) }

// DebugTimeEcho logs time-echo round-trip details if timeecho debugging is enabled
func (l *Logger) DebugTimeEcho(msg string, args ...any) { l.categoryDebug(DebugTimeEcho, msg, args...) }

// DebugStatus logs status-model update details if status debugging is enabled
func (l *Logger) DebugStatus(msg string, args ...any) { l.categoryDebug(DebugStatus, msg, args...) }

// DebugRTPPacket logs detailed RTP packet information
func (l *Logger) DebugRTPPacket(seq uint16, timestamp uint32, payloadType uint8, payloadSize int) {
	if l.config.IsCategoryEnabled(DebugRTSP) {
		l.Logger.Debug().
			Str("category", "rtsp").
			Uint16("sequence", seq).
			Uint32("timestamp", timestamp).
			Uint8("payload_type", payloadType).
			Int("payload_size", payloadSize).
			Msg("RTP packet")
	}
}

// DebugNALUnit logs NAL unit type and size
func (l *Logger) DebugNALUnit(naluType uint8, size int, fragmented bool) {
	if l.config.IsCategoryEnabled(DebugNAL) {
		l.Logger.Debug().
			Str("category", "nal").
			Uint8("type", naluType).
			Str("type_name", nalTypeName(naluType)).
			Int("size", size).
			Bool("fragmented", fragmented).
			Msg("NAL unit")
	}
}

// WithContext returns a logger carrying values from ctx (no-op placeholder
// for call sites that thread a context through for future trace correlation).
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return &Logger{Logger: l.Logger, config: l.config, file: l.file}
}

// With returns a new Logger with the given key/value pairs attached to every
// subsequent entry.
func (l *Logger) With(args ...any) *Logger {
	ctx := l.Logger.With()
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", args[i])
		}
		ctx = ctx.Interface(key, args[i+1])
	}
	return &Logger{Logger: ctx.Logger(), config: l.config, file: l.file}
}

func nalTypeName(naluType uint8) string {
	switch naluType {
	case 1:
		return "P-frame"
	case 5:
		return "IDR"
	case 6:
		return "SEI"
	case 7:
		return "SPS"
	case 8:
		return "PPS"
	case 9:
		return "AUD"
	case 28:
		return "FU-A"
	default:
		return fmt.Sprintf("unknown(%d)", naluType)
	}
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// SetDefault sets the global default logger
func SetDefault(l *Logger) {
	defaultLogger = l
}

// Default returns the default logger, creating one if necessary
func Default() *Logger {
	once.Do(func() {
		l, err := New(NewConfig())
		if err != nil {
			l = &Logger{Logger: zerolog.New(os.Stderr), config: NewConfig()}
		}
		defaultLogger = l
	})
	return defaultLogger
}

// Debug logs at Debug level using the default logger
func Debug(msg string, args ...any) { Default().Debug(msg, args...) }

// Info logs at Info level using the default logger
func Info(msg string, args ...any) { Default().Info(msg, args...) }

// Warn logs at Warn level using the default logger
func Warn(msg string, args ...any) { Default().Warn(msg, args...) }

// Error logs at Error level using the default logger
func Error(msg string, args ...any) { Default().Error(msg, args...) }
