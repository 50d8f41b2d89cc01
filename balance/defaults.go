package balance

import "github.com/kbukum/consulagent/util"

// Built-in values used when neither configuration nor the backend supply one.
const (
	DefaultFactor          = 100
	UnknownClass           = "unknown"
	DefaultWeightTablePath = "consul/factor_map.json"
	DefaultBackendAddress  = "localhost:8500"
	DefaultCheckInterval   = "10s"
	DefaultCheckTimeout    = "1s"
	DefaultDeregisterAfter = "90m"
)

// WeightTable maps an instance class to its balance factor.
type WeightTable map[string]int

// Clone returns an independent copy of the table.
func (t WeightTable) Clone() WeightTable {
	return util.CopyMap(t)
}

// Defaults is the fallback configuration shared by the resolver and the
// registration builder. It is constructed once at startup and passed down.
type Defaults struct {
	// Table is returned, copied, whenever the remote table cannot be used.
	Table WeightTable
	// Factor applies when a table has neither the class nor UnknownKey.
	Factor int
	// UnknownKey is the table key consulted for classes not in the table.
	UnknownKey      string
	WeightTablePath string
	BackendAddress  string
	CheckInterval   string
	CheckTimeout    string
	DeregisterAfter string
}

// DefaultDefaults returns the built-in defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		Table: WeightTable{
			"m4.4xlarge": DefaultFactor,
			"r4.4xlarge": DefaultFactor,
			"c4.4xlarge": DefaultFactor,
			UnknownClass: DefaultFactor,
		},
		Factor:          DefaultFactor,
		UnknownKey:      UnknownClass,
		WeightTablePath: DefaultWeightTablePath,
		BackendAddress:  DefaultBackendAddress,
		CheckInterval:   DefaultCheckInterval,
		CheckTimeout:    DefaultCheckTimeout,
		DeregisterAfter: DefaultDeregisterAfter,
	}
}

// withBuiltins fills zero fields from DefaultDefaults.
func (d Defaults) withBuiltins() Defaults {
	b := DefaultDefaults()
	if len(d.Table) == 0 {
		d.Table = b.Table
	}
	if d.Factor == 0 {
		d.Factor = b.Factor
	}
	if d.UnknownKey == "" {
		d.UnknownKey = b.UnknownKey
	}
	if d.WeightTablePath == "" {
		d.WeightTablePath = b.WeightTablePath
	}
	if d.BackendAddress == "" {
		d.BackendAddress = b.BackendAddress
	}
	if d.CheckInterval == "" {
		d.CheckInterval = b.CheckInterval
	}
	if d.CheckTimeout == "" {
		d.CheckTimeout = b.CheckTimeout
	}
	if d.DeregisterAfter == "" {
		d.DeregisterAfter = b.DeregisterAfter
	}
	return d
}

// ResolveBalanceFactor returns table[class] when present, else the table's
// unknown entry, else the default factor.
func ResolveBalanceFactor(class string, table WeightTable, defaults Defaults) int {
	if v, ok := table[class]; ok {
		return v
	}
	key := defaults.UnknownKey
	if key == "" {
		key = UnknownClass
	}
	if v, ok := table[key]; ok {
		return v
	}
	if defaults.Factor != 0 {
		return defaults.Factor
	}
	return DefaultFactor
}
