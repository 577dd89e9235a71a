// Package logger configures the process-wide structured logger. All
// operational output is JSON on stdout so scheduled runs can be parsed and
// grepped; the scraping packages log through logrus directly.
package logger

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Init sets up the JSON formatter and the minimum level. Verbose enables
// debug output (per-row drops, backfills, cache loads).
func Init(verbose bool) {
	logrus.SetOutput(os.Stdout)
	logrus.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}
