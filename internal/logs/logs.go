package logs

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger — package-wide logger; Init reconfigures it from config.
var Logger = logrus.New()

type Options struct {
	Level  string
	Format string // "text" | "json"
	File   string // empty -> stderr
}

func Init(o Options) {
	lvl, err := logrus.ParseLevel(o.Level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Logger.SetLevel(lvl)

	switch o.Format {
	case "json":
		Logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var out io.Writer = os.Stderr
	if o.File != "" {
		f, err := os.OpenFile(o.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			Logger.Warnf("log file %s: %v (falling back to stderr)", o.File, err)
		} else {
			out = io.MultiWriter(os.Stderr, f)
		}
	}
	Logger.SetOutput(out)
}
