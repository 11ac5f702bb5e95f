package global

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	logFileNamePrefix = "flatio-"
	logFileNameSuffix = ".log"
	logsDirMode       = 0o700
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// GetLogger returns the process wide logger. It writes to stderr and, when
// FLATIO_LOG_FILE_ENABLED is set, to rotating segments under FLATIO_LOG_DIR.
func GetLogger() *zap.Logger {
	loggerOnce.Do(func() {
		cfg := GetEnvCfg()

		logLevel := cfg.Log.Level
		if cfg.Test {
			logLevel = "debug"
		}

		setting := loggerSetting{
			test:                  cfg.Test,
			logLevel:              logLevel,
			logDir:                cfg.Log.Dir,
			logDirMaxFiles:        10,
			logFileMaxSegmentSize: 10 * 1024 * 1024,
			logDirMaxAge:          time.Hour * 24,
		}

		cores := []zapcore.Core{setting.setupConsoleCore()}
		if cfg.Log.FileEnabled && !cfg.Test {
			cores = append(cores, setting.setupLogFileCore(time.Now()))
		}

		logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	})
	return logger
}

type loggerSetting struct {
	logLevel string
	test     bool

	logDir                string
	logFileMaxSegmentSize int
	logDirMaxFiles        int
	logDirMaxAge          time.Duration
}

func (l *loggerSetting) encoderConfig() zapcore.EncoderConfig {
	config := zap.NewProductionEncoderConfig()
	if l.test {
		config = zap.NewDevelopmentEncoderConfig()
	}
	config.EncodeTime = zapcore.ISO8601TimeEncoder
	return config
}

func (l *loggerSetting) setupConsoleCore() zapcore.Core {
	return zapcore.NewCore(
		zapcore.NewConsoleEncoder(l.encoderConfig()),
		zapcore.AddSync(os.Stderr),
		logLevelFromFlag(strings.ToLower(l.logLevel)),
	)
}

func (l *loggerSetting) setupLogFileCore(now time.Time) zapcore.Core {
	baseName := fmt.Sprintf("%v%v-%v%v", logFileNamePrefix, now.Format("20060102-150405"), os.Getpid(), logFileNameSuffix)
	if err := os.MkdirAll(l.logDir, logsDirMode); err != nil {
		fmt.Fprintln(os.Stderr, "Unable to create logs directory:", err)
	}

	odf := &onDemandFile{
		logDir:          l.logDir,
		logFileBaseName: baseName,
		maxSegmentSize:  l.logFileMaxSegmentSize,
		sweep: func() {
			sweepLogDir(l.logDir, l.logDirMaxFiles, l.logDirMaxAge)
		},
	}
	go odf.sweep()

	return zapcore.NewCore(
		zapcore.NewJSONEncoder(l.encoderConfig()),
		odf,
		logLevelFromFlag(strings.ToLower(l.logLevel)),
	)
}

// sweepLogDir keeps the newest maxCount log files that are younger than maxAge.
func sweepLogDir(dirname string, maxCount int, maxAge time.Duration) {
	timeCutoff := time.Now().Add(-maxAge)

	entries, err := os.ReadDir(dirname)
	if err != nil {
		fmt.Fprintln(os.Stderr, "unable to read log directory:", err)
		return
	}

	infos := make([]os.FileInfo, 0, len(entries))
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), logFileNamePrefix) || !strings.HasSuffix(e.Name(), logFileNameSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// lost the race with another sweeper
			continue
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ModTime().After(infos[j].ModTime())
	})

	for i, fi := range infos {
		if i >= maxCount || fi.ModTime().Before(timeCutoff) {
			if err = os.Remove(filepath.Join(dirname, fi.Name())); err != nil && !os.IsNotExist(err) {
				fmt.Fprintln(os.Stderr, "unable to remove log file:", err)
			}
		}
	}
}

func logLevelFromFlag(levelString string) zapcore.LevelEnabler {
	switch levelString {
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "warning", "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// onDemandFile is a zapcore.WriteSyncer that opens its segment lazily and
// starts a new one once maxSegmentSize would be exceeded.
type onDemandFile struct {
	mu sync.Mutex
	f  *os.File

	segmentCounter     int
	currentSegmentSize int
	maxSegmentSize     int

	logDir          string
	logFileBaseName string

	sweep func()
}

func (w *onDemandFile) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	return w.f.Sync()
}

func (w *onDemandFile) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f != nil && w.currentSegmentSize+len(b) > w.maxSegmentSize {
		if err := w.f.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: unable to close log segment: %v", err)
		}
		w.f = nil
		go w.sweep()
	}

	if w.f == nil {
		ext := filepath.Ext(w.logFileBaseName)
		name := fmt.Sprintf("%s.%d%s", strings.TrimSuffix(w.logFileBaseName, ext), w.segmentCounter, ext)
		w.segmentCounter++
		w.currentSegmentSize = 0

		f, err := os.Create(filepath.Join(w.logDir, name)) //nolint:gosec
		if err != nil {
			return 0, errors.Wrap(err, "unable to open log file")
		}
		w.f = f
	}

	n, err := w.f.Write(b)
	w.currentSegmentSize += n
	return n, err
}
