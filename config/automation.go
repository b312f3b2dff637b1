package config

import "time"

// AutomationConfig contains the automation runtime configuration.
type AutomationConfig struct {
	// UploadsDir is where uploaded input files are stored under
	// timestamp-prefixed names.
	UploadsDir string `env:"AUTOMATION_UPLOADS_DIR" envDefault:"uploads"`

	// ResultsDir is the shared directory automation scripts write their
	// report artifacts into.
	ResultsDir string `env:"AUTOMATION_RESULTS_DIR" envDefault:"results"`

	// ScriptsDir holds the automation scripts named by the service catalog.
	ScriptsDir string `env:"AUTOMATION_SCRIPTS_DIR" envDefault:"scripts"`

	// PythonBin is the Python interpreter used to run automation scripts.
	PythonBin string `env:"AUTOMATION_PYTHON_BIN" envDefault:"python3"`

	// DevCredits seeds the in-memory ledger balance per user in dev mode.
	DevCredits int `env:"AUTOMATION_DEV_CREDITS" envDefault:"1000"`
}

// Sanitize applies guardrails to automation configuration values.
func (a *AutomationConfig) Sanitize() {
	if a.PythonBin == "" {
		a.PythonBin = "python3"
	}
	if a.DevCredits < 0 {
		a.DevCredits = 0
	}
}

// SweeperConfig contains retention sweeper configuration.
type SweeperConfig struct {
	// Interval is the sweep tick interval.
	Interval time.Duration `env:"SWEEPER_INTERVAL" envDefault:"10m"`

	// TTL is how long terminal jobs remain fetchable after they end.
	TTL time.Duration `env:"SWEEPER_TTL" envDefault:"24h"`
}

// Sanitize applies guardrails to sweeper configuration values.
func (s *SweeperConfig) Sanitize() {
	if s.Interval < time.Minute {
		s.Interval = time.Minute
	}
	if s.TTL < 10*time.Minute {
		s.TTL = 10 * time.Minute
	}
}

// NotifierConfig contains failure notification configuration.
type NotifierConfig struct {
	// WebhookURL enables the webhook sink when non-empty.
	WebhookURL string `env:"NOTIFIER_WEBHOOK_URL" envDefault:""`

	// FieldsExpr is an optional JMESPath expression shaping the webhook body.
	FieldsExpr string `env:"NOTIFIER_FIELDS_EXPR" envDefault:""`

	// Timeout bounds one delivery attempt.
	Timeout time.Duration `env:"NOTIFIER_TIMEOUT" envDefault:"5s"`

	// RetryLimit is the number of retries after the first attempt.
	RetryLimit int `env:"NOTIFIER_RETRY_LIMIT" envDefault:"2"`
}

// Sanitize applies guardrails to notifier configuration values.
func (n *NotifierConfig) Sanitize() {
	if n.Timeout <= 0 {
		n.Timeout = 5 * time.Second
	}
	if n.RetryLimit < 0 {
		n.RetryLimit = 0
	}
	if n.RetryLimit > 10 {
		n.RetryLimit = 10
	}
}

// ObservabilityConfig contains metrics configuration.
type ObservabilityConfig struct {
	// StatsdEnabled switches metric emission on.
	StatsdEnabled bool `env:"STATSD_ENABLED" envDefault:"false"`

	// StatsdAddr is the UDP address of the StatsD-compatible sink.
	StatsdAddr string `env:"STATSD_ADDR" envDefault:"localhost:8125"`

	// StatsdPrefix is prepended to every metric name.
	StatsdPrefix string `env:"STATSD_PREFIX" envDefault:"automation"`
}

// Sanitize applies guardrails to observability configuration values.
func (o *ObservabilityConfig) Sanitize() {
	if o.StatsdEnabled && o.StatsdAddr == "" {
		o.StatsdEnabled = false
	}
}
