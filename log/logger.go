package log

import (
	"io"
	"os"

	"github.com/op/go-logging"
)

// Level is a verbosity threshold for SetLevel.
type Level logging.Level

const (
	Debug Level = iota
	Info
	Notice
	Warning
	Error
)

var levelMap = map[Level]logging.Level{
	Debug:   logging.DEBUG,
	Info:    logging.INFO,
	Notice:  logging.NOTICE,
	Warning: logging.WARNING,
	Error:   logging.ERROR,
}

var lineFormat = logging.MustStringFormatter(
	`%{color}[%{time:15:04:05.000}] [%{module}] [%{level}]%{color:reset} %{message}`,
)

var backend logging.LeveledBackend

// Logger is the leveled logging facade handed out to the other packages.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Noticef(format string, v ...interface{})
	Warningf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

// New returns a named logger sharing the process-wide sink and level.
func New(name string) Logger {
	return logging.MustGetLogger(name)
}

// SetSink redirects all logger output to the given writer.
func SetSink(sink io.Writer) {
	backend = logging.AddModuleLevel(
		logging.NewBackendFormatter(logging.NewLogBackend(sink, "", 0), lineFormat),
	)
	backend.SetLevel(levelMap[Notice], "")
	logging.SetBackend(backend)
}

// SetLevel drops log entries below the given verbosity level.
func SetLevel(level Level) {
	backend.SetLevel(levelMap[level], "")
}

func init() {
	SetSink(os.Stderr)
}
