// Package logging configures the process-wide logrus logger from an
// explicit Config value. Unlike the teacher, there is no package-level
// init() reading the environment: Design Notes §9 calls out implicit
// global configuration as something to re-architect away, so log level
// is wired in once, by the cmd/ entrypoint, from the loaded Config.
package logging

import (
	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/ereefs-mirror/internal/config"
)

// InitLogger sets the log level and format based on the provided configuration.
func InitLogger(cfg *config.Config) {
	setLogLevel(cfg.LogLevel)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
}

func setLogLevel(logLevel string) {
	switch logLevel {
	case "trace":
		log.SetLevel(log.TraceLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	default:
		log.SetLevel(log.ErrorLevel)
	}
}
