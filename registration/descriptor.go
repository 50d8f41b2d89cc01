package registration

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"

	"github.com/kbukum/consulagent/validation"
)

// Meta keys published with every registration.
const (
	MetaBalanceFactor = "balanceFactor"
	MetaZone          = "zone"
)

// DefaultCheckName names the TCP check attached to every registration.
const DefaultCheckName = "check port"

// HealthCheck is the TCP check the agent runs against the instance.
type HealthCheck struct {
	Name                           string `json:"Name" validate:"required"`
	TCP                            string `json:"TCP" validate:"required,tcp_target"`
	Interval                       string `json:"Interval" validate:"required,duration"`
	Timeout                        string `json:"Timeout" validate:"required,duration"`
	DeregisterCriticalServiceAfter string `json:"DeregisterCriticalServiceAfter" validate:"required,duration"`
}

// ServiceDescriptor is the registration payload. JSON names follow the
// Consul agent API.
type ServiceDescriptor struct {
	ID                string            `json:"ID" validate:"required"`
	Name              string            `json:"Name" validate:"required"`
	Tags              []string          `json:"Tags"`
	Address           string            `json:"Address" validate:"required,ip"`
	Meta              map[string]string `json:"Meta" validate:"required"`
	Port              int               `json:"Port" validate:"min=1,max=65535"`
	EnableTagOverride bool              `json:"EnableTagOverride" validate:"eq=false"`
	Check             HealthCheck       `json:"Check"`
}

// ServiceID returns the identity of an instance: "<name>-<address>-<port>".
// Deregistration uses the same string.
func ServiceID(name, address string, port int) string {
	return fmt.Sprintf("%s-%s-%d", name, address, port)
}

// CheckTarget returns the host:port the TCP check dials. IPv6 addresses are
// bracketed.
func CheckTarget(address string, port int) string {
	return net.JoinHostPort(address, strconv.Itoa(port))
}

// Validate checks the descriptor's struct tags.
func (d ServiceDescriptor) Validate() error {
	return validation.Validate(d)
}

// BalanceFactor returns the published balance factor.
func (d ServiceDescriptor) BalanceFactor() string { return d.Meta[MetaBalanceFactor] }

// Zone returns the published zone.
func (d ServiceDescriptor) Zone() string { return d.Meta[MetaZone] }

// Pretty renders the descriptor as JSON indented with four spaces.
func (d ServiceDescriptor) Pretty() ([]byte, error) {
	return json.MarshalIndent(d, "", "    ")
}
