package otelx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"go.opentelemetry.io/otel"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/protobuf/proto"

	"github.com/bakkerme/selfpost-copier/internal/config"
)

func TestInitDisabledReturnsNoopShutdown(t *testing.T) {
	shutdown, err := Init(context.Background(), nil, config.OTelEnvConfig{}, Deployment{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shutdown == nil {
		t.Fatalf("expected non-nil shutdown")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitRejectsUnknownProtocol(t *testing.T) {
	_, err := Init(context.Background(), nil, config.OTelEnvConfig{Enabled: true, Protocol: "carrier-pigeon"}, Deployment{})
	if err == nil {
		t.Fatalf("expected unsupported protocol error")
	}
}

func TestEndpointAndProtocolDefaults(t *testing.T) {
	cases := []struct {
		cfg          config.OTelEnvConfig
		wantProtocol string
		wantEndpoint string
	}{
		{config.OTelEnvConfig{}, "grpc", "localhost:4317"},
		{config.OTelEnvConfig{Protocol: "http"}, "http/protobuf", "localhost:4318"},
		{config.OTelEnvConfig{Protocol: "grpc", Endpoint: "collector:4317"}, "grpc", "collector:4317"},
	}
	for _, tc := range cases {
		if got := protocolOrDefault(tc.cfg); got != tc.wantProtocol {
			t.Fatalf("protocol = %q, want %q", got, tc.wantProtocol)
		}
		if got := endpointOrDefault(tc.cfg); got != tc.wantEndpoint {
			t.Fatalf("endpoint = %q, want %q", got, tc.wantEndpoint)
		}
	}
}

type collector struct {
	mu       sync.Mutex
	paths    []string
	requests []*coltracepb.ExportTraceServiceRequest
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	req := &coltracepb.ExportTraceServiceRequest{}
	if err := proto.Unmarshal(body, req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c.mu.Lock()
	c.paths = append(c.paths, r.URL.Path)
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(http.StatusOK)
}

func TestInitExportsOverHTTPWithDeployment(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	col := &collector{}
	srv := httptest.NewServer(col)
	defer srv.Close()

	shutdown, err := Init(context.Background(), nil, config.OTelEnvConfig{
		Enabled:     true,
		Protocol:    "http/protobuf",
		Endpoint:    srv.URL + "/v1/traces",
		Insecure:    true,
		SampleRatio: 1,
	}, Deployment{Target: "copies", Sources: []string{"golang", "rust"}, Backend: "session"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "copier.cycle")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	col.mu.Lock()
	defer col.mu.Unlock()
	if len(col.requests) == 0 {
		t.Fatalf("no spans exported")
	}
	if col.paths[0] != "/v1/traces" {
		t.Fatalf("path = %q", col.paths[0])
	}
	rs := col.requests[0].GetResourceSpans()
	if len(rs) == 0 {
		t.Fatalf("empty export")
	}
	attrs := map[string]string{}
	for _, kv := range rs[0].GetResource().GetAttributes() {
		attrs[kv.GetKey()] = kv.GetValue().GetStringValue()
	}
	if attrs["service.name"] != "selfpost-copier" {
		t.Fatalf("service.name = %q", attrs["service.name"])
	}
	if attrs["copier.target"] != "copies" || attrs["copier.backend"] != "session" {
		t.Fatalf("deployment attributes missing: %v", attrs)
	}
	spans := rs[0].GetScopeSpans()
	if len(spans) == 0 || len(spans[0].GetSpans()) == 0 || spans[0].GetSpans()[0].GetName() != "copier.cycle" {
		t.Fatalf("unexpected spans %v", spans)
	}
}

func TestDeploymentAttributesSkipEmpty(t *testing.T) {
	attrs := Deployment{}.attributes()
	if len(attrs) != 1 || attrs[0].Key != "service.version" {
		t.Fatalf("attrs = %v", attrs)
	}
}
