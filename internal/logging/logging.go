package logging

import (
	"github.com/sirupsen/logrus"
)

// New builds the process logger. JSON output is used in online deployments
// where logs feed an aggregator; text elsewhere.
func New(level string, jsonFormat bool) *logrus.Logger {
	log := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	if jsonFormat {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
