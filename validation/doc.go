// Package validation validates registration payloads and operator input.
//
// Struct tag validation uses go-playground/validator with json tag names in
// error messages. Two tags are added: "duration" for Consul duration strings
// and "tcp_target" for the ip:port a TCP check dials.
//
//	type HealthCheck struct {
//	    TCP      string `json:"TCP" validate:"required,tcp_target"`
//	    Interval string `json:"Interval" validate:"required,duration"`
//	}
//	err := validation.Validate(check)
//
// Programmatic validation reports every failed field at once:
//
//	err := validation.New().Required("service", name).Port("port", port).Error()
package validation
