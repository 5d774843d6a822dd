package ginsrv

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthRoute answers GET /healthz. A nil check always reports healthy.
func HealthRoute(check func() error) Route {
	return Route{
		Method: http.MethodGet,
		Path:   "/healthz",
		Handler: func(c *gin.Context) {
			if check != nil {
				if err := check(); err != nil {
					c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
					return
				}
			}
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		},
	}
}

// MetricsRoute serves GET /metrics from gatherer in the Prometheus text format.
func MetricsRoute(gatherer prometheus.Gatherer) Route {
	return Route{
		Method:  http.MethodGet,
		Path:    "/metrics",
		Handler: gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})),
	}
}
