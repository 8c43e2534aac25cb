package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog        zerolog.Logger
	diagFile       *os.File
	transcribeFile *os.File
	logMu          sync.Mutex
	logReady       bool
	pid            int
	dir            string
)

// stdout is reserved for the bridge event stream, so every human-readable
// line goes to stderr and to the diagnostics file.

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

	// Priority 2: SPEAKD_LOG_PATH environment variable
	envPath := os.Getenv("SPEAKD_LOG_PATH")
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

	transcribePath := filepath.Join(dir, "transcribe_log.txt")
	transcribeFile, err = os.OpenFile(transcribePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	fileWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	stderrWriter := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(io.MultiWriter(fileWriter, stderrWriter)).
		With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func SetLevel(level string) {
	lv, err := zerolog.ParseLevel(level)
	if err != nil {
		Warnf("unknown log level %q, keeping info", level)
		return
	}
	diagLog = diagLog.Level(lv)
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if transcribeFile != nil {
		transcribeFile.Close()
		transcribeFile = nil
	}
	logReady = false
}

func Debug(msg string) {
	if logReady {
		diagLog.Debug().Msg(msg)
	}
}

func Debugf(format string, args ...any) {
	if logReady {
		diagLog.Debug().Msg(fmt.Sprintf(format, args...))
	}
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

// SessionStart records the beginning of a recording session.
func SessionStart(id uint64, device string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Uint64("session", id).
		Str("device", device).
		Msg("session_start")
}

// SessionStop records the end of a recording session with its stop reason
// ("user" or "size_limit") and the number of captured bytes.
func SessionStop(id uint64, reason string, bytes uint64) {
	if !logReady {
		return
	}
	diagLog.Info().
		Uint64("session", id).
		Str("reason", reason).
		Uint64("bytes", bytes).
		Msg("session_stop")
}

// TaskMetrics records per-task transcription timings after the pipeline
// worker finishes a session.
func TaskMetrics(session uint64, audioS, inferenceS, confidence float64, corrections int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Uint64("session", session).
		Float64("audio_s", audioS).
		Float64("inference_s", inferenceS).
		Float64("confidence", confidence).
		Int("corrections", corrections).
		Msg("transcription")
}

// TranscriptionText appends the final text of a session to the transcript
// log. Kept out of the structured diagnostics stream on purpose.
func TranscriptionText(text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	line := fmt.Sprintf("%s\t[%d]\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, text)
	transcribeFile.WriteString(line)
}

// PipelineEnd records pipeline teardown totals.
func PipelineEnd(submitted, completed, dropped uint64) {
	if !logReady {
		return
	}
	diagLog.Info().
		Uint64("submitted", submitted).
		Uint64("completed", completed).
		Uint64("dropped", dropped).
		Msg("pipeline_end")
}
