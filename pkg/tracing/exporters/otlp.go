// Package exporters builds the OTLP span exporter the worker ships traces through.
package exporters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	_ "google.golang.org/grpc/encoding/gzip" // registers the "gzip" grpc compressor
)

const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"

	CompressionNone = "none"
	CompressionGzip = "gzip"
)

// OTLPConfig describes where and how spans are exported.
type OTLPConfig struct {
	Endpoint    string // host:port of the collector
	Protocol    string // grpc, http or http/protobuf
	Insecure    bool
	Compression string            // none or gzip
	Headers     map[string]string // e.g. collector auth tokens
	Timeout     time.Duration
}

// DefaultOTLPConfig targets a local collector over plaintext gRPC.
func DefaultOTLPConfig() OTLPConfig {
	return OTLPConfig{
		Endpoint:    "localhost:4317",
		Protocol:    ProtocolGRPC,
		Insecure:    true,
		Compression: CompressionNone,
		Timeout:     10 * time.Second,
	}
}

// protocol folds the accepted spellings onto ProtocolGRPC or ProtocolHTTP.
func (c OTLPConfig) protocol() (string, error) {
	switch strings.ToLower(strings.TrimSpace(c.Protocol)) {
	case "", ProtocolGRPC:
		return ProtocolGRPC, nil
	case ProtocolHTTP, "http/protobuf":
		return ProtocolHTTP, nil
	default:
		return "", fmt.Errorf("unsupported OTLP protocol: %s (use 'grpc' or 'http')", c.Protocol)
	}
}

func (c OTLPConfig) gzip() (bool, error) {
	switch strings.ToLower(strings.TrimSpace(c.Compression)) {
	case "", CompressionNone:
		return false, nil
	case CompressionGzip:
		return true, nil
	default:
		return false, fmt.Errorf("unsupported OTLP compression: %s (use 'none' or 'gzip')", c.Compression)
	}
}

// NewOTLPExporter creates the span exporter for the configured protocol.
func NewOTLPExporter(ctx context.Context, config OTLPConfig) (*otlptrace.Exporter, error) {
	if strings.TrimSpace(config.Endpoint) == "" {
		return nil, errors.New("OTLP endpoint is required when tracing is enabled")
	}
	protocol, err := config.protocol()
	if err != nil {
		return nil, err
	}
	gzip, err := config.gzip()
	if err != nil {
		return nil, err
	}

	if protocol == ProtocolHTTP {
		return otlptracehttp.New(ctx, httpOptions(config, gzip)...)
	}
	return otlptracegrpc.New(ctx, grpcOptions(config, gzip)...)
}

func grpcOptions(config OTLPConfig, gzip bool) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.Endpoint)}
	if config.Timeout > 0 {
		opts = append(opts, otlptracegrpc.WithTimeout(config.Timeout))
	}
	if config.Insecure {
		opts = append(opts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	if gzip {
		opts = append(opts, otlptracegrpc.WithCompressor(CompressionGzip))
	}
	if len(config.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(config.Headers))
	}
	return opts
}

func httpOptions(config OTLPConfig, gzip bool) []otlptracehttp.Option {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(config.Endpoint)}
	if config.Timeout > 0 {
		opts = append(opts, otlptracehttp.WithTimeout(config.Timeout))
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if gzip {
		opts = append(opts, otlptracehttp.WithCompression(otlptracehttp.GzipCompression))
	}
	if len(config.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(config.Headers))
	}
	return opts
}
