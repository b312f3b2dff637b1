package config

// DBConfig contains PostgreSQL configuration for the credit ledger.
type DBConfig struct {
	// Enabled switches the ledger to Postgres. When false an in-memory
	// ledger is used (development and tests).
	Enabled  bool   `env:"ENABLED"  envDefault:"false"`
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"automation"`
	Password string `env:"PASSWORD" envDefault:"automation"`
	Name     string `env:"NAME"     envDefault:"automation"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
}

// RedisConfig contains Redis configuration for the status event stream.
type RedisConfig struct {
	// Enabled switches status event publishing on.
	Enabled  bool   `env:"ENABLED"  envDefault:"false"`
	URI      string `env:"URI"      envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`
	// Channel overrides the pub/sub channel for status events.
	Channel string `env:"CHANNEL" envDefault:""`
}
