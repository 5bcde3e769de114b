package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_http_requests_total",
			Help: "Total number of HTTP requests processed by the message service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "message_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	grpcServerHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_server_handled_total",
			Help: "Total number of gRPC requests handled by the server.",
		},
		[]string{"grpc_service", "grpc_method", "grpc_code"},
	)
	streamActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "message_stream_active_connections",
			Help: "Number of open live channels.",
		},
		[]string{"transport"},
	)
	streamEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_stream_events_total",
			Help: "Total number of live channel lifecycle events.",
		},
		[]string{"transport", "event"},
	)
	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_dispatch_total",
			Help: "Push dispatch attempts by result.",
		},
		[]string{"result"},
	)
	dispatchQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "message_dispatch_queue_depth",
			Help: "Detached tasks waiting for a worker.",
		},
	)
	messagesCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_created_total",
			Help: "Messages persisted by type.",
		},
		[]string{"type"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "message_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		grpcServerHandledTotal,
		streamActiveConnections,
		streamEventsTotal,
		dispatchTotal,
		dispatchQueueDepth,
		messagesCreatedTotal,
		amqpPublishErrorsTotal,
	)
}

// HTTPMetricsMiddleware records request counts and latency per route. Live
// channel routes are long-lived, so their duration is the connection lifetime.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		statusInfo := status.Convert(err)
		service, method := splitFullMethod(info.FullMethod)
		grpcServerHandledTotal.WithLabelValues(service, method, statusInfo.Code().String()).Inc()
		return resp, err
	}
}

func splitFullMethod(fullMethod string) (string, string) {
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 3 {
		return "unknown", "unknown"
	}
	return parts[1], parts[2]
}

func IncStreamActive(transport string) {
	streamActiveConnections.WithLabelValues(transport).Inc()
}

func DecStreamActive(transport string) {
	streamActiveConnections.WithLabelValues(transport).Dec()
}

func IncStreamEvent(transport, event string) {
	streamEventsTotal.WithLabelValues(transport, event).Inc()
}

func IncDispatch(result string) {
	dispatchTotal.WithLabelValues(result).Inc()
}

func SetDispatchQueueDepth(n int) {
	dispatchQueueDepth.Set(float64(n))
}

func IncMessageCreated(messageType string) {
	messagesCreatedTotal.WithLabelValues(messageType).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
