package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog   zerolog.Logger
	diagFile  *os.File
	orderFile *os.File
	logMu     sync.Mutex
	logReady  bool
	pid       int
	dir       string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		if !filepath.IsAbs(flagPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, flagPath), nil
		}
		return flagPath, nil
	}

	// Priority 2: GARCON_LOG_PATH environment variable
	envPath := os.Getenv("GARCON_LOG_PATH")
	if envPath != "" {
		if !filepath.IsAbs(envPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, envPath), nil
		}
		return envPath, nil
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	orderPath := filepath.Join(dir, "order_log.txt")
	orderFile, err = os.OpenFile(orderPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if orderFile != nil {
		orderFile.Close()
		orderFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// SessionState records a controller transition with its reason.
func SessionState(sessionID, state, reason string) {
	if !logReady {
		return
	}
	ev := diagLog.Info().Str("state", state).Str("reason", reason)
	if sessionID != "" {
		ev = ev.Str("session", sessionID)
	}
	ev.Msg("session_state")
}

// Transcription records one transcription round trip.
func Transcription(provider, format string, audioS, totalMs, confidence float64) {
	if !logReady {
		return
	}
	ev := diagLog.Info().
		Str("provider", provider).
		Str("format", format).
		Float64("audio_s", audioS).
		Float64("total_ms", totalMs)
	if confidence > 0 {
		ev = ev.Float64("confidence", confidence)
	}
	ev.Msg("transcription")
}

// OrderText appends the confirmed order text to the order log.
// Dietary alerts ride along so the log is reviewable on its own.
func OrderText(text string, alerts []string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	tag := ""
	if len(alerts) > 0 {
		tag = "\t[" + strings.Join(alerts, ",") + "]"
	}
	line := fmt.Sprintf("%s\t[%d]\t%s%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, text, tag)
	orderFile.WriteString(line)
}

func OrderSubmitted(orderID, table, seat string, alertCount int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("order", orderID).
		Str("table", table).
		Str("seat", seat).
		Int("alerts", alertCount).
		Msg("order_submitted")
}

func SessionStart(provider, format string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("provider", provider).
		Str("format", format).
		Msg("session_start")
}

func SessionEnd(count int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("count", count).
		Msg("session_end")
}
