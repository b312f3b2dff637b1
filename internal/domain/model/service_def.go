package model

// ServiceDefinition maps a service kind to the automation script that
// implements it. The catalog is declarative; scripts live in the configured
// scripts directory and follow the shared output contract (progress lines,
// emoji log markers, reports written to the results directory).
type ServiceDefinition struct {
	Kind        string `json:"kind"`
	DisplayName string `json:"display_name"`
	Script      string `json:"script"`
	CreditCost  int    `json:"credit_cost"`
	Enabled     bool   `json:"enabled"`
}

// Catalog is a static mapping from service kind to its definition.
type Catalog map[string]ServiceDefinition

// Lookup returns the definition for a kind, if present and enabled.
func (c Catalog) Lookup(kind string) (ServiceDefinition, bool) {
	def, ok := c[kind]
	if !ok || !def.Enabled {
		return ServiceDefinition{}, false
	}
	return def, true
}

// DefaultCatalog returns the built-in service catalog.
func DefaultCatalog() Catalog {
	return Catalog{
		"damco_tracking_maersk": {
			Kind:        "damco_tracking_maersk",
			DisplayName: "Damco Tracking (Maersk Portal)",
			Script:      "damco_tracking_maersk.py",
			CreditCost:  10,
			Enabled:     true,
		},
		"example_automation": {
			Kind:        "example_automation",
			DisplayName: "Example Automation",
			Script:      "example_automation.py",
			CreditCost:  1,
			Enabled:     true,
		},
	}
}
