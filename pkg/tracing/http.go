package tracing

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// GinMiddleware instruments the admin server's routes when
// tracing.enabled is set; it shares the exporter KafkaAttributedSink's
// header-based context propagation writes into and reads out of.
func GinMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}
