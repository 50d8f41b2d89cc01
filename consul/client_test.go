package consul_test

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/consul/api"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kbukum/consulagent/balance"
	"github.com/kbukum/consulagent/consul"
	"github.com/kbukum/consulagent/consul/testutil"
	"github.com/kbukum/consulagent/errors"
	"github.com/kbukum/consulagent/registration"
)

func newClient(t *testing.T, srv *testutil.Server) *consul.Client {
	t.Helper()
	c, err := consul.NewClient(consul.Config{Address: srv.Address(), Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func testDescriptor() registration.ServiceDescriptor {
	return registration.ServiceDescriptor{
		ID:      "api-10.0.0.5-9099",
		Name:    "api",
		Tags:    []string{"http"},
		Address: "10.0.0.5",
		Meta:    map[string]string{"balanceFactor": "100", "zone": "us-east-1a"},
		Port:    9099,
		Check: registration.HealthCheck{
			Name:                           "check port",
			TCP:                            "10.0.0.5:9099",
			Interval:                       "10s",
			Timeout:                        "1s",
			DeregisterCriticalServiceAfter: "90m",
		},
	}
}

func TestKVRoundTrip(t *testing.T) {
	srv := testutil.NewServer(t)
	c := newClient(t, srv)
	ctx := context.Background()

	value := []byte(`{"m4.4xlarge":80}`)
	if err := c.PutKV(ctx, "consul/api/factor_map.json", value); err != nil {
		t.Fatalf("PutKV: %v", err)
	}
	stored, ok := srv.KV("consul/api/factor_map.json")
	if !ok || string(stored) != string(value) {
		t.Fatalf("fake did not store value: %q", stored)
	}

	got, err := c.GetKV(ctx, "consul/api/factor_map.json")
	if err != nil {
		t.Fatalf("GetKV: %v", err)
	}
	if string(got) != string(value) {
		t.Errorf("got %q, want %q", got, value)
	}
}

func TestGetKVNotFound(t *testing.T) {
	srv := testutil.NewServer(t)
	c := newClient(t, srv)

	_, err := c.GetKV(context.Background(), "missing/key")
	if !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	appErr, _ := errors.AsAppError(err)
	if want := srv.URL() + "/v1/kv/missing/key"; appErr.URL() != want {
		t.Errorf("URL = %q, want %q", appErr.URL(), want)
	}
	if appErr.Reason() != "Not Found" {
		t.Errorf("Reason = %q", appErr.Reason())
	}
}

func TestBackendRejected(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		status int
		call   func(c *consul.Client) error
	}{
		{"kv get", "/v1/kv/", http.StatusInternalServerError, func(c *consul.Client) error {
			_, err := c.GetKV(context.Background(), "k")
			return err
		}},
		{"kv put", "/v1/kv/", http.StatusForbidden, func(c *consul.Client) error {
			return c.PutKV(context.Background(), "k", []byte("v"))
		}},
		{"register", "/v1/agent/service/register", http.StatusBadRequest, func(c *consul.Client) error {
			return c.Register(context.Background(), testDescriptor())
		}},
		{"services", "/v1/catalog/", http.StatusServiceUnavailable, func(c *consul.Client) error {
			_, err := c.Services(context.Background())
			return err
		}},
		{"health", "/v1/health/", http.StatusInternalServerError, func(c *consul.Client) error {
			_, err := c.HealthyInstances(context.Background(), "api")
			return err
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := testutil.NewServer(t)
			srv.FailWith(tc.prefix, tc.status, "rejected by test")
			err := tc.call(newClient(t, srv))

			appErr, ok := errors.AsAppError(err)
			if !ok || appErr.Code != errors.ErrCodeBackendRejected {
				t.Fatalf("expected BACKEND_REJECTED, got %v", err)
			}
			if appErr.HTTPStatus != tc.status {
				t.Errorf("status = %d, want %d", appErr.HTTPStatus, tc.status)
			}
			if appErr.Reason() != http.StatusText(tc.status) {
				t.Errorf("reason = %q", appErr.Reason())
			}
			if !strings.HasPrefix(appErr.URL(), srv.URL()+tc.prefix) {
				t.Errorf("URL = %q", appErr.URL())
			}
			if appErr.Details["body"] != "rejected by test" {
				t.Errorf("body = %v", appErr.Details["body"])
			}
		})
	}
}

func TestBackendUnavailable(t *testing.T) {
	srv := testutil.NewServer(t)
	c := newClient(t, srv)
	srv.Close()

	_, err := c.GetKV(context.Background(), "k")
	if !errors.IsCode(err, errors.ErrCodeBackendUnavailable) {
		t.Fatalf("expected BACKEND_UNAVAILABLE, got %v", err)
	}
	appErr, _ := errors.AsAppError(err)
	if appErr.HTTPStatus != 0 || appErr.Reason() != "" {
		t.Errorf("expected no status, got %d %q", appErr.HTTPStatus, appErr.Reason())
	}
}

func TestWritesHonorCancellation(t *testing.T) {
	srv := testutil.NewServer(t)
	c := newClient(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := map[string]func() error{
		"register":   func() error { return c.Register(ctx, testDescriptor()) },
		"deregister": func() error { return c.Deregister(ctx, "api-10.0.0.5-9099") },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			if err := call(); !errors.IsCode(err, errors.ErrCodeBackendUnavailable) {
				t.Fatalf("expected BACKEND_UNAVAILABLE for a canceled context, got %v", err)
			}
		})
	}
	if n := srv.RequestCount("/v1/agent/service/"); n != 0 {
		t.Errorf("expected no agent requests after cancellation, got %d", n)
	}
	if _, ok := srv.Registered("api-10.0.0.5-9099"); ok {
		t.Error("service registered despite canceled context")
	}
}

func TestRegisterDeregister(t *testing.T) {
	srv := testutil.NewServer(t)
	c := newClient(t, srv)
	ctx := context.Background()
	d := testDescriptor()

	if err := c.Register(ctx, d); err != nil {
		t.Fatalf("Register: %v", err)
	}
	reg, ok := srv.Registered(d.ID)
	if !ok {
		t.Fatal("registration not stored")
	}
	if reg.Check == nil || reg.Check.TCP != "10.0.0.5:9099" || reg.Check.Name != "check port" {
		t.Errorf("unexpected check %+v", reg.Check)
	}
	if reg.EnableTagOverride || !reflect.DeepEqual(reg.Meta, d.Meta) {
		t.Errorf("unexpected registration %+v", reg)
	}

	var body map[string]any
	reqs := srv.Requests()
	if err := json.Unmarshal(reqs[len(reqs)-1].Body, &body); err != nil {
		t.Fatalf("register body: %v", err)
	}
	for _, key := range []string{"ID", "Name", "Tags", "Address", "Meta", "Port", "Check"} {
		if _, ok := body[key]; !ok {
			t.Errorf("register body missing %q: %v", key, body)
		}
	}

	if err := c.Deregister(ctx, d.ID); err != nil {
		t.Fatalf("Deregister: %v", err)
	}
	if _, ok := srv.Registered(d.ID); ok {
		t.Error("registration still present")
	}

	err := c.Deregister(ctx, d.ID)
	appErr, ok := errors.AsAppError(err)
	if !ok || appErr.HTTPStatus != http.StatusNotFound {
		t.Fatalf("expected 404 on second deregister, got %v", err)
	}
	if want := srv.URL() + "/v1/agent/service/deregister/" + d.ID; appErr.URL() != want {
		t.Errorf("URL = %q, want %q", appErr.URL(), want)
	}
}

func TestServicesAndHealthyInstances(t *testing.T) {
	srv := testutil.NewServer(t)
	c := newClient(t, srv)
	ctx := context.Background()

	if err := c.Register(ctx, testDescriptor()); err != nil {
		t.Fatal(err)
	}
	srv.AddInstance(&api.ServiceEntry{
		Node:    &api.Node{Node: "n2"},
		Service: &api.AgentService{ID: "api-2", Service: "api", Address: "10.0.0.6", Port: 9099},
		Checks:  api.HealthChecks{{Status: api.HealthCritical}},
	})

	services, err := c.Services(ctx)
	if err != nil {
		t.Fatalf("Services: %v", err)
	}
	if !reflect.DeepEqual(services["api"], []string{"http"}) {
		t.Errorf("unexpected services %v", services)
	}

	entries, err := c.HealthyInstances(ctx, "api")
	if err != nil {
		t.Fatalf("HealthyInstances: %v", err)
	}
	if len(entries) != 1 || entries[0].Service.ID != "api-10.0.0.5-9099" {
		t.Errorf("expected only the passing instance, got %d entries", len(entries))
	}
	last := srv.Requests()[len(srv.Requests())-1]
	if !strings.Contains(last.Query, "passing") {
		t.Errorf("expected passing filter, got query %q", last.Query)
	}
}

func TestDialerFeedsResolver(t *testing.T) {
	srv := testutil.NewServer(t)
	srv.SetKV("consul/factor_map.json", []byte(`{"m4.4xlarge": 60, "unknown": 20}`))

	r := balance.NewResolver(balance.DefaultDefaults(), consul.Dialer(time.Second))
	table := r.FetchWeightTable(context.Background(), "", srv.Address())
	if table["m4.4xlarge"] != 60 || table["unknown"] != 20 {
		t.Errorf("unexpected table %v", table)
	}
	if n := srv.RequestCount("/v1/kv/consul/factor_map.json"); n != 1 {
		t.Errorf("expected exactly one GET, got %d", n)
	}
}

func TestDialerFallbackOnNon200(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusInternalServerError} {
		srv := testutil.NewServer(t)
		srv.SetKV("consul/factor_map.json", []byte(`{"m4.4xlarge": 60}`))
		srv.FailWith("/v1/kv/", status, "nope")

		r := balance.NewResolver(balance.DefaultDefaults(), consul.Dialer(time.Second))
		table := r.FetchWeightTable(context.Background(), "", srv.Address())
		want := balance.DefaultDefaults().Table
		if !reflect.DeepEqual(table, want) {
			t.Errorf("status %d: got %v, want %v", status, table, want)
		}
	}
}

func TestBackendSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	srv := testutil.NewServer(t)
	c := newClient(t, srv)
	_, _ = c.GetKV(context.Background(), "missing")

	spans := exporter.GetSpans()
	if len(spans) != 1 || spans[0].Name != "consul.kv_get" {
		t.Fatalf("unexpected spans %v", spans)
	}
}

func TestConfigApplyDefaults(t *testing.T) {
	tests := []struct {
		in      consul.Config
		address string
		scheme  string
	}{
		{consul.Config{}, "localhost:8500", "http"},
		{consul.Config{Address: "10.0.0.1:8500"}, "10.0.0.1:8500", "http"},
		{consul.Config{Address: "https://consul.internal:8501/"}, "consul.internal:8501", "https"},
		{consul.Config{Address: "http://consul:8500"}, "consul:8500", "http"},
	}
	for _, tc := range tests {
		cfg := tc.in
		cfg.ApplyDefaults()
		if cfg.Address != tc.address || cfg.Scheme != tc.scheme || cfg.Timeout != consul.DefaultTimeout {
			t.Errorf("ApplyDefaults(%+v) = %+v", tc.in, cfg)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate(%+v): %v", cfg, err)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := consul.Config{Address: "x:1", Scheme: "ftp"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected scheme error")
	}
	if _, err := consul.NewClient(consul.Config{Address: "x:1", Scheme: "ftp"}); !errors.IsCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT from NewClient, got %v", err)
	}
}
