// Package version хранит сведения о сборке, проставляемые через -ldflags:
//
//	-X github.com/vladislavdragonenkov/storefront/internal/version.version=v1.2.0
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

const unknown = "unknown"

// BuildInfo описывает собранный бинарник.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
}

// Get собирает сведения из ldflags, дополняя пустые поля VCS-метками Go toolchain.
func Get() BuildInfo {
	info := BuildInfo{Version: version, Commit: commit, Date: date, GoVersion: runtime.Version()}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && info.Commit == "":
				info.Commit = s.Value
			case s.Key == "vcs.time" && info.Date == "":
				info.Date = s.Value
			}
		}
	}
	if info.Commit == "" {
		info.Commit = unknown
	}
	if info.Date == "" {
		info.Date = unknown
	}
	return info
}

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

func (b BuildInfo) String() string {
	return fmt.Sprintf("storefront %s (commit %s, built %s, %s)", b.Version, shortCommit(b.Commit), b.Date, b.GoVersion)
}

// Collector публикует storefront_build_info со значением 1 и метками сборки.
func Collector() prometheus.Collector {
	info := Get()
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "storefront_build_info",
		Help: "Build metadata of the running storefront binary.",
	}, []string{"version", "commit", "go_version"})
	gauge.WithLabelValues(info.Version, info.Commit, info.GoVersion).Set(1)
	return gauge
}

func shortCommit(c string) string {
	if len(c) > 12 {
		return c[:12]
	}
	return c
}
