package probe

import "context"

// Profile is a point-in-time snapshot of the local environment.
type Profile struct {
	PrimaryIP     string `json:"primary_ip"`
	InstanceClass string `json:"instance_class"`
	Zone          string `json:"zone"`
	Hostname      string `json:"hostname"`
}

// Snapshot collects a fresh Profile. It fails only when the address probe fails.
func Snapshot(ctx context.Context, p Prober) (Profile, error) {
	ip, err := p.PrimaryOutboundAddress(ctx)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		PrimaryIP:     ip,
		InstanceClass: p.InstanceClass(ctx),
		Zone:          p.AvailabilityZone(ctx),
		Hostname:      p.Hostname(ctx),
	}, nil
}

// Static is a Prober returning fixed values. A non-nil Err makes the address
// probe fail; empty metadata fields read as Unknown.
type Static struct {
	Profile Profile
	Err     error
}

// PrimaryOutboundAddress returns the fixed address or Err.
func (s Static) PrimaryOutboundAddress(context.Context) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	return s.Profile.PrimaryIP, nil
}

// InstanceClass returns the fixed class.
func (s Static) InstanceClass(context.Context) string { return orUnknown(s.Profile.InstanceClass) }

// AvailabilityZone returns the fixed zone.
func (s Static) AvailabilityZone(context.Context) string { return orUnknown(s.Profile.Zone) }

// Hostname returns the fixed hostname.
func (s Static) Hostname(context.Context) string { return orUnknown(s.Profile.Hostname) }

func orUnknown(v string) string {
	if v == "" {
		return Unknown
	}
	return v
}
