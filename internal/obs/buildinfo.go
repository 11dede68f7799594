package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Volunteerhub build information.",
		},
		[]string{"revision", "modified"},
	)
)

// InitBuildInfo registers the build_info metric once and sets its value.
func InitBuildInfo(revision, modified string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})

	buildInfo.WithLabelValues(revision, modified).Set(1)
}
