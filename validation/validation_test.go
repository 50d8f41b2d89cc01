package validation

import (
	"strings"
	"testing"

	"github.com/kbukum/consulagent/errors"
)

type checkFixture struct {
	TCP      string `json:"TCP" validate:"required,tcp_target"`
	Interval string `json:"Interval" validate:"required,duration"`
}

type descriptorFixture struct {
	Name    string       `json:"Name" validate:"required"`
	Address string       `json:"Address" validate:"required,ip"`
	Port    int          `json:"Port" validate:"min=1,max=65535"`
	Check   checkFixture `json:"Check"`
}

func validFixture() descriptorFixture {
	return descriptorFixture{
		Name:    "api",
		Address: "10.0.0.5",
		Port:    9099,
		Check:   checkFixture{TCP: "10.0.0.5:9099", Interval: "10s"},
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := Validate(validFixture()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_TCPTargets(t *testing.T) {
	for _, target := range []string{"10.0.0.5:9099", "[fd00::5]:9099", "[::1]:1", "127.0.0.1:65535"} {
		t.Run(target, func(t *testing.T) {
			d := validFixture()
			d.Check.TCP = target
			if err := Validate(d); err != nil {
				t.Errorf("expected %q to be accepted, got %v", target, err)
			}
		})
	}
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*descriptorFixture)
		field  string
	}{
		{"missing name", func(d *descriptorFixture) { d.Name = "" }, "Name is required"},
		{"bad address", func(d *descriptorFixture) { d.Address = "not-an-ip" }, "Address must be an IP address"},
		{"port zero", func(d *descriptorFixture) { d.Port = 0 }, "Port must be at least 1"},
		{"port too high", func(d *descriptorFixture) { d.Port = 70000 }, "Port must be at most 65535"},
		{"bad duration", func(d *descriptorFixture) { d.Check.Interval = "soon" }, "Check.Interval must be a duration"},
		{"tcp without port", func(d *descriptorFixture) { d.Check.TCP = "10.0.0.5" }, "Check.TCP must be ip:port"},
		{"tcp hostname", func(d *descriptorFixture) { d.Check.TCP = "node-1:9099" }, "Check.TCP must be ip:port"},
		{"tcp port zero", func(d *descriptorFixture) { d.Check.TCP = "10.0.0.5:0" }, "Check.TCP must be ip:port"},
		{"tcp port too high", func(d *descriptorFixture) { d.Check.TCP = "10.0.0.5:70000" }, "Check.TCP must be ip:port"},
		{"tcp unbracketed ipv6", func(d *descriptorFixture) { d.Check.TCP = "fd00::5:9099" }, "Check.TCP must be ip:port"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := validFixture()
			tc.mutate(&d)
			err := Validate(d)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.IsCode(err, errors.ErrCodeInvalidInput) {
				t.Errorf("expected INVALID_INPUT, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.field) {
				t.Errorf("expected error containing %q, got %q", tc.field, err.Error())
			}
		})
	}
}

func TestValidator_Collects(t *testing.T) {
	err := New().
		Required("service", "  ").
		Port("port", 0).
		Duration("interval", "often").
		Custom(true, "ok", "never").
		Error()
	if err == nil {
		t.Fatal("expected error")
	}
	appErr, ok := errors.AsAppError(err)
	if !ok {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Details["field"] != "service" {
		t.Errorf("expected first field to be recorded, got %v", appErr.Details["field"])
	}
	fields, _ := appErr.Details["fields"].([]FieldError)
	if len(fields) != 3 {
		t.Fatalf("expected 3 field errors, got %v", fields)
	}
	for _, want := range []string{"service is required", "port must be between 1 and 65535", `interval must be a duration such as 10s or 90m, got "often"`} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %q", want, err.Error())
		}
	}
}

func TestValidator_NoErrors(t *testing.T) {
	err := New().
		Required("service", "api").
		Port("port", 9099).
		Duration("timeout", "1s").
		Error()
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}
