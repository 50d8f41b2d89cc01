package validation

import (
	"net"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kbukum/consulagent/errors"
)

var (
	validate *validator.Validate
	once     sync.Once
)

// getValidator returns the singleton validator instance.
func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		_ = validate.RegisterValidation("duration", isDuration)
		_ = validate.RegisterValidation("tcp_target", isTCPTarget)
	})
	return validate
}

const maxPort = 65535

// isTCPTarget accepts "ip:port" with a literal IPv4 or bracketed IPv6
// address and a port in 1-65535.
func isTCPTarget(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || net.ParseIP(host) == nil {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= maxPort
}

// isDuration accepts strings time.ParseDuration understands, e.g. "10s" or "90m".
func isDuration(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	_, err := time.ParseDuration(fl.Field().String())
	return err == nil
}

// Validate validates a struct using struct tags and returns an
// errors.ErrCodeInvalidInput AppError listing every failed field.
func Validate(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.InvalidInput("", err.Error())
	}

	v := New()
	for _, e := range validationErrors {
		v.fail(fieldPath(e), formatValidationError(e))
	}
	return v.Error()
}

// fieldPath drops the top-level struct name from the namespace, so
// "ServiceDescriptor.Check.TCP" becomes "Check.TCP".
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if idx := strings.Index(ns, "."); idx != -1 {
		return ns[idx+1:]
	}
	return e.Field()
}

// formatValidationError creates a human-readable error message.
func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "ip":
		return "must be an IP address"
	case "tcp_target":
		return "must be ip:port"
	case "duration":
		return "must be a duration such as 10s or 90m"
	case "oneof":
		return "must be one of: " + e.Param()
	case "eq":
		return "must equal " + e.Param()
	default:
		return "is invalid"
	}
}
