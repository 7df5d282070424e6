// Package logging configures the process logger: logrus with a rotating
// file sink when a log directory is given (50 MB per file, 2 rotated
// files kept), stderr otherwise.
package logging

import (
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup configures and returns the process logger. dir selects the log
// directory; the empty string keeps stderr. level accepts the logrus
// level names and falls back to info.
func Setup(dir, level string) *logrus.Logger {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	lv, err := logrus.ParseLevel(level)
	if err != nil {
		lv = logrus.InfoLevel
	}
	log.SetLevel(lv)

	if dir != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   filepath.Join(dir, "computeq.log"),
			MaxSize:    50, // megabytes
			MaxBackups: 2,
		})
	}
	return log
}
