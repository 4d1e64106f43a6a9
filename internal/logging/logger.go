package logging

import (
	"io"
	"os"
	"strings"

	"github.com/2beens/fittrack/pkg"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LoggerSetupParams struct {
	// Process names the binary (fittrack, dochost, bridgehost); it is
	// attached to every entry and used as the sentry server name.
	Process       string
	LogFileName   string
	LogToStdout   bool
	LogLevel      string
	LogFormatJSON bool
	Environment   string
	SentryEnabled bool
	SentryDSN     string
}

// Setup configures the global logrus logger. The returned func closes the
// rotated log file, if one was opened.
func Setup(params LoggerSetupParams) func() {
	if params.LogFormatJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	logrus.SetLevel(GetLevel(params.LogLevel))
	if params.Process != "" {
		logrus.AddHook(&processHook{process: params.Process})
	}

	if params.SentryEnabled {
		err := sentry.Init(sentry.ClientOptions{
			Environment:      params.Environment,
			Dsn:              params.SentryDSN,
			TracesSampleRate: 1.0,
			ServerName:       params.Process,
		})
		if err != nil {
			logrus.Errorf("sentry init: %s", err)
		} else {
			logrus.AddHook(NewSentryHook([]logrus.Level{
				logrus.PanicLevel,
				logrus.FatalLevel,
				logrus.ErrorLevel,
			}))
			logrus.Debugln("sentry hook added")
		}
	}

	if params.LogFileName == "" {
		logrus.SetOutput(os.Stdout)
		logrus.Debugln("logging to stdout only")
		return func() {}
	}

	fileName := params.LogFileName
	if !strings.HasSuffix(fileName, ".log") {
		fileName += ".log"
	}

	// MaxSize in megabytes, MaxAge in days; rotated names use UTC
	rotated := &lumberjack.Logger{
		Filename:   fileName,
		MaxSize:    20,
		MaxBackups: 10,
		MaxAge:     60,
		LocalTime:  false,
		Compress:   true,
	}

	var out io.Writer = rotated
	if params.LogToStdout {
		out = pkg.NewCombinedWriter(os.Stdout, rotated)
	}
	logrus.SetOutput(out)
	logrus.Debugf("logging to [%s], stdout: %t", fileName, params.LogToStdout)

	return func() {
		logrus.SetOutput(os.Stdout)
		if err := rotated.Close(); err != nil {
			logrus.Errorf("close log file: %s", err)
		}
	}
}

func GetLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "info":
		return logrus.InfoLevel
	case "trace":
		return logrus.TraceLevel
	case "warn":
		return logrus.WarnLevel
	default:
		return logrus.TraceLevel
	}
}

type processHook struct {
	process string
}

func (h *processHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *processHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["process"]; !ok {
		entry.Data["process"] = h.process
	}
	return nil
}
