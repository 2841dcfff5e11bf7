// Package telemetry wires the gateway's OTLP trace provider and Prometheus
// metrics, grounded in the teacher's OTLP trace-provider bootstrap
// (resource.New + sdktrace.NewTracerProvider + otlptracehttp) and its
// Prometheus client dependency. Unlike the teacher's per-organisation
// telemetry configuration service, there is exactly one tracer provider and
// one metrics registry for the whole gateway process.
package telemetry

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"
)

// Telemetry bundles the gateway's tracer and the Prometheus collectors used
// to record per-query timing (spec §4.8).
type Telemetry struct {
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer

	queriesTotal     *prometheus.CounterVec
	queryErrorsTotal *prometheus.CounterVec
	graphqlSeconds   prometheus.Histogram
	datafusionSeconds prometheus.Histogram
	overallSeconds   prometheus.Histogram
	activeConnections prometheus.Gauge
}

// Config controls whether traces are exported and where.
type Config struct {
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string // empty disables trace export; spans are still created and discarded
	OTLPProtocol   string // "grpc" or "http/protobuf" (OTEL_EXPORTER_OTLP_PROTOCOL); defaults to http/protobuf
}

// New builds a Telemetry instance and registers its collectors with
// prometheus.DefaultRegisterer, so the admin plane's promhttp handler
// exposes them without any extra wiring.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("building resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.OTLPEndpoint != "" {
		exporter, err := newExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("building OTLP exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	t := &Telemetry{
		tracerProvider: tp,
		tracer:         tp.Tracer("histgate/connfsm"),
		queriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "histgate_queries_total",
			Help: "Total queries processed, by command tag.",
		}, []string{"tag"}),
		queryErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "histgate_query_errors_total",
			Help: "Total queries that ended in an error, by SQLSTATE.",
		}, []string{"sqlstate"}),
		graphqlSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "histgate_graphql_request_seconds",
			Help:    "Latency of remote historian backend HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}),
		datafusionSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "histgate_engine_query_seconds",
			Help:    "Latency of the embedded SQL execution engine.",
			Buckets: prometheus.DefBuckets,
		}),
		overallSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "histgate_query_total_seconds",
			Help:    "End-to-end latency of a query from receipt to CommandComplete.",
			Buckets: prometheus.DefBuckets,
		}),
		activeConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "histgate_active_connections",
			Help: "Currently open wire-protocol connections.",
		}),
	}
	return t, nil
}

// newExporter picks the gRPC or HTTP OTLP trace exporter per cfg.OTLPProtocol,
// mirroring the teacher's createGRPCExporter/createHTTPExporter split
// (telemetry_service.go) so both transports the teacher's go.mod declares
// stay exercised rather than just one.
func newExporter(ctx context.Context, cfg Config) (*otlptrace.Exporter, error) {
	if strings.EqualFold(cfg.OTLPProtocol, "grpc") {
		return createGRPCExporter(ctx, cfg.OTLPEndpoint)
	}
	return createHTTPExporter(ctx, cfg.OTLPEndpoint)
}

func createGRPCExporter(ctx context.Context, endpoint string) (*otlptrace.Exporter, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if isSecureEndpoint(endpoint) {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	} else {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	client := otlptracegrpc.NewClient(opts...)
	return otlptrace.New(ctx, client)
}

func createHTTPExporter(ctx context.Context, endpoint string) (*otlptrace.Exporter, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if !isSecureEndpoint(endpoint) {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	client := otlptracehttp.NewClient(opts...)
	return otlptrace.New(ctx, client)
}

func isSecureEndpoint(endpoint string) bool {
	return strings.HasPrefix(endpoint, "https")
}

// Shutdown flushes and stops the tracer provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.tracerProvider.Shutdown(ctx)
}

// StartQuerySpan starts a span around one query's execution.
func (t *Telemetry) StartQuerySpan(ctx context.Context, sql string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "query", trace.WithAttributes(attribute.String("db.statement", sql)))
}

// RecordQuery records the three timing buckets spec §4.8 tracks for a single
// query, plus the query/error counters.
func (t *Telemetry) RecordQuery(tag string, graphqlMs, datafusionMs, overallMs int64, sqlstate string) {
	t.queriesTotal.WithLabelValues(tag).Inc()
	if sqlstate != "" {
		t.queryErrorsTotal.WithLabelValues(sqlstate).Inc()
	}
	t.graphqlSeconds.Observe(float64(graphqlMs) / 1000)
	t.datafusionSeconds.Observe(float64(datafusionMs) / 1000)
	t.overallSeconds.Observe(float64(overallMs) / 1000)
}

// ConnectionOpened and ConnectionClosed track the active-connections gauge.
func (t *Telemetry) ConnectionOpened() { t.activeConnections.Inc() }
func (t *Telemetry) ConnectionClosed() { t.activeConnections.Dec() }
