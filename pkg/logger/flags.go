package logger

import (
	"flag"
	"fmt"
	"strings"
)

// Flags holds all logging-related command-line flags
type Flags struct {
	LogLevel      string
	LogFormat     string
	LogFile       string
	DebugRTSP     bool
	DebugRTCP     bool
	DebugNAL      bool
	DebugDecode   bool
	DebugStream   bool
	DebugMatch    bool
	DebugTimeEcho bool
	DebugStatus   bool
	DebugAll      bool
}

// RegisterFlags registers logging flags with the given FlagSet
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}

	fs.StringVar(&f.LogLevel, "log-level", "info",
		"Log level: debug, info, warn, error")
	fs.StringVar(&f.LogLevel, "l", "info",
		"Log level (shorthand)")

	fs.StringVar(&f.LogFormat, "log-format", "text",
		"Log output format: text, json")

	fs.StringVar(&f.LogFile, "log-file", "",
		"Log output file path (default: stdout)")
	fs.StringVar(&f.LogFile, "o", "",
		"Log output file path (shorthand)")

	fs.BoolVar(&f.DebugRTSP, "debug-rtsp", false,
		"Enable RTSP request/response debugging")
	fs.BoolVar(&f.DebugRTCP, "debug-rtcp", false,
		"Enable RTCP sender-report / wallclock-offset debugging")
	fs.BoolVar(&f.DebugNAL, "debug-nal", false,
		"Enable detailed NAL unit debugging (type, size, raw bytes)")
	fs.BoolVar(&f.DebugDecode, "debug-decode", false,
		"Enable sensor sample decode debugging (gaze, imu, eye events)")
	fs.BoolVar(&f.DebugStream, "debug-stream", false,
		"Enable stream manager lifecycle debugging")
	fs.BoolVar(&f.DebugMatch, "debug-match", false,
		"Enable cross-stream timestamp matching debugging")
	fs.BoolVar(&f.DebugTimeEcho, "debug-timeecho", false,
		"Enable time-echo clock offset debugging")
	fs.BoolVar(&f.DebugStatus, "debug-status", false,
		"Enable status model update debugging")
	fs.BoolVar(&f.DebugAll, "debug-all", false,
		"Enable all debug categories")

	return f
}

// ToConfig converts Flags to a logger Config
func (f *Flags) ToConfig() (*Config, error) {
	cfg := NewConfig()

	level, err := ParseLevel(f.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg.Level = level

	format, err := ParseFormat(f.LogFormat)
	if err != nil {
		return nil, err
	}
	cfg.Format = format

	cfg.OutputFile = f.LogFile

	if f.DebugAll {
		cfg.EnableCategory(DebugAll)
		cfg.Level = LevelDebug
	} else {
		for cat, enabled := range map[DebugCategory]bool{
			DebugRTSP:     f.DebugRTSP,
			DebugRTCP:     f.DebugRTCP,
			DebugNAL:      f.DebugNAL,
			DebugDecode:   f.DebugDecode,
			DebugStream:   f.DebugStream,
			DebugMatch:    f.DebugMatch,
			DebugTimeEcho: f.DebugTimeEcho,
			DebugStatus:   f.DebugStatus,
		} {
			if enabled {
				cfg.EnableCategory(cat)
				cfg.Level = LevelDebug
			}
		}
	}

	return cfg, nil
}

// PrintUsageExamples prints usage examples for logging flags
func PrintUsageExamples() {
	examples := `
Logging Examples:

  Basic usage (INFO level, text format to stdout):
    ./neon-stream

  Enable DEBUG level:
    ./neon-stream --log-level debug
    ./neon-stream -l debug

  Log to file:
    ./neon-stream --log-file stream.log
    ./neon-stream -o stream.log

  JSON format for structured logging:
    ./neon-stream --log-format json -o stream.json

  Debug RTCP wallclock offset calculation only:
    ./neon-stream --debug-rtcp

  Debug NAL reassembly only:
    ./neon-stream --debug-nal

  Debug multiple categories:
    ./neon-stream --debug-rtsp --debug-nal --debug-stream

  Debug everything:
    ./neon-stream --debug-all -o debug.log

  Production logging (WARN level, JSON to file):
    ./neon-stream -l warn --log-format json -o production.log
`
	fmt.Println(examples)
}

// String returns a string representation of enabled flags
func (f *Flags) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("level=%s", f.LogLevel))
	parts = append(parts, fmt.Sprintf("format=%s", f.LogFormat))

	if f.LogFile != "" {
		parts = append(parts, fmt.Sprintf("output=%s", f.LogFile))
	} else {
		parts = append(parts, "output=stdout")
	}

	var debugCategories []string
	switch {
	case f.DebugAll:
		debugCategories = append(debugCategories, "all")
	default:
		if f.DebugRTSP {
			debugCategories = append(debugCategories, "rtsp")
		}
		if f.DebugRTCP {
			debugCategories = append(debugCategories, "rtcp")
		}
		if f.DebugNAL {
			debugCategories = append(debugCategories, "nal")
		}
		if f.DebugDecode {
			debugCategories = append(debugCategories, "decode")
		}
		if f.DebugStream {
			debugCategories = append(debugCategories, "stream")
		}
		if f.DebugMatch {
			debugCategories = append(debugCategories, "match")
		}
		if f.DebugTimeEcho {
			debugCategories = append(debugCategories, "timeecho")
		}
		if f.DebugStatus {
			debugCategories = append(debugCategories, "status")
		}
	}

	if len(debugCategories) > 0 {
		parts = append(parts, fmt.Sprintf("debug=[%s]", strings.Join(debugCategories, ",")))
	}

	return strings.Join(parts, " ")
}
