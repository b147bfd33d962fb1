// Package version хранит сведения о сборке трекера.
package version

import (
	"fmt"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
)

// Значения подставляются через -ldflags "-X .../internal/version.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func init() {
	if version != "dev" {
		return
	}
	// go install кладёт версию модуля в build info.
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
}

// Info возвращает версию, коммит и дату сборки.
func Info() (v, c, d string) { return version, commit, date }

func String() string {
	return fmt.Sprintf("order-tracker %s (commit %s, built %s)", version, commit, date)
}

// Fields возвращает сведения о сборке для стартового лога.
func Fields() log.Fields {
	return log.Fields{"version": version, "commit": commit, "built": date}
}

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }
