package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	AppLogger   = zerolog.Nop()
	ProxyLogger = zerolog.Nop()
	ErrorLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	logLevel     = zerolog.InfoLevel
	appLogFile   *os.File
	proxyLogFile *os.File
	initialized  bool
	mu           sync.Mutex
)

// ParseLevel maps the DEBUG/INFO/WARN/ERROR names used in config onto zerolog levels.
// Unknown or empty names fall back to INFO.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func openLogFile(path, name string) (io.Writer, *os.File, string) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		ErrorLogger.Error().Err(err).Str("dir", dir).Msgf("Failed to create %s log directory. %s logs will be discarded.", name, name)
		return io.Discard, nil, "(discarded)"
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		ErrorLogger.Error().Err(err).Str("path", path).Msgf("Failed to open %s log file. %s logs will be discarded.", name, name)
		return io.Discard, nil, "(discarded)"
	}
	return f, f, path
}

// InitGlobalLoggers (re)opens the app and proxy log files. Calling it again with the same
// level while the files are open is a no-op.
func InitGlobalLoggers(appLogPath, proxyLogPath, level string) error {
	mu.Lock()
	defer mu.Unlock()

	newLevel := ParseLevel(level)
	if initialized && appLogFile != nil && proxyLogFile != nil && newLevel == logLevel {
		return nil
	}
	closeFilesLocked()
	logLevel = newLevel

	appWriter, appFile, actualAppLogPath := openLogFile(appLogPath, "app")
	appLogFile = appFile
	AppLogger = zerolog.New(appWriter).Level(logLevel).With().Timestamp().Str("component", "app").Logger()

	proxyWriter, proxyFile, actualProxyLogPath := openLogFile(proxyLogPath, "proxy")
	proxyLogFile = proxyFile
	ProxyLogger = zerolog.New(proxyWriter).Level(logLevel).With().Timestamp().Str("component", "proxy").Logger()

	if !initialized {
		AppLogger.Info().Str("level", logLevel.String()).Str("file", actualAppLogPath).Msg("App logger initialized")
		ProxyLogger.Info().Str("level", logLevel.String()).Str("file", actualProxyLogPath).Msg("Proxy logger initialized")
	}
	initialized = true
	return nil
}

func Info(format string, v ...interface{}) {
	AppLogger.Info().Msgf(format, v...)
}

func Debug(format string, v ...interface{}) {
	AppLogger.Debug().Msgf(format, v...)
}

func Warn(format string, v ...interface{}) {
	AppLogger.Warn().Msgf(format, v...)
}

// Error writes to stderr and, when a file is open, to the app log.
func Error(format string, v ...interface{}) {
	message := fmt.Sprintf(format, v...)
	ErrorLogger.Error().Msg(message)
	if appLogFile != nil {
		AppLogger.Error().Msg(message)
	}
}

func Fatal(format string, v ...interface{}) {
	ErrorLogger.Fatal().Msgf(format, v...)
}

func ProxyInfo(format string, v ...interface{}) {
	ProxyLogger.Info().Msgf(format, v...)
}

func ProxyDebug(format string, v ...interface{}) {
	ProxyLogger.Debug().Msgf(format, v...)
}

func ProxyError(format string, v ...interface{}) {
	message := fmt.Sprintf(format, v...)
	ErrorLogger.Error().Str("component", "proxy").Msg(message)
	if proxyLogFile != nil {
		ProxyLogger.Error().Msg(message)
	}
}

func closeFilesLocked() {
	if appLogFile != nil {
		AppLogger.Info().Msg("Closing app log file.")
		appLogFile.Close()
		appLogFile = nil
	}
	if proxyLogFile != nil {
		ProxyLogger.Info().Msg("Closing proxy log file.")
		proxyLogFile.Close()
		proxyLogFile = nil
	}
}

func CloseLogFiles() {
	mu.Lock()
	defer mu.Unlock()
	closeFilesLocked()
	AppLogger = zerolog.Nop()
	ProxyLogger = zerolog.Nop()
	initialized = false // Allow re-initialization (tests)
}
