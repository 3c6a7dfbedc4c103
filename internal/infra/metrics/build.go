package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(buildInfo) }

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "build_info",
		Help: "A constant metric with labels for service and version.",
	},
	[]string{"service", "version"},
)

func SetBuildInfo(service, version string) {
	buildInfo.WithLabelValues(service, version).Set(1)
}
