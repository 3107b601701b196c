package keepercfg

import (
    "fmt"
    "os"
    "strings"

    "gopkg.in/yaml.v3"
)

type Config struct {
    Server Server `yaml:"server"`
    Postgres PostgresConfig `yaml:"postgres"`
    Redis RedisConfig `yaml:"redis"`
    Logging LoggingConfig `yaml:"logging"`
    Maintenance MaintenanceConfig `yaml:"maintenance"`
    Tables []TableConfig `yaml:"tables"`
}

type Server struct {
	Listen string `yaml:"listen"`
}

type PostgresConfig struct {
    DSN string `yaml:"dsn"`
    MaxConns int `yaml:"max_conns"`
    ConnMaxLifetimeMs int `yaml:"conn_max_lifetime_ms"`
    ApplyMigrations bool `yaml:"apply_migrations"`
    StatementTimeoutMs int `yaml:"statement_timeout_ms"`
}

type RedisConfig struct {
    Enabled bool `yaml:"enabled"`
    Addr string `yaml:"addr"`
    Username string `yaml:"username"`
    Password string `yaml:"password"`
    DB int `yaml:"db"`
    KeyPrefix string `yaml:"key_prefix"`
}

type LoggingConfig struct {
    Level string `yaml:"level"`
    Buffer int `yaml:"buffer"`
    Output string `yaml:"output"`
}

type MaintenanceConfig struct {
    IntervalMinutes int `yaml:"interval_minutes"`
    RunTimeoutMinutes int `yaml:"run_timeout_minutes"`
    Workers int `yaml:"workers"`
    AnalyzeAfterDays int `yaml:"analyze_after_days"`
}

// TableConfig describes one partitioned logical table managed by the keeper.
type TableConfig struct {
    Name string `yaml:"name"`
    PartitionColumn string `yaml:"partition_column"`
    RetentionMonths int `yaml:"retention_months"`
    AheadMonths int `yaml:"ahead_months"`
    IndexTemplate string `yaml:"index_template"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":7700"
	}
    // Env overrides for secrets
    if v := os.Getenv("KEEPER_PG_DSN"); v != "" {
        cfg.Postgres.DSN = v
    }
    if v := os.Getenv("KEEPER_PG_DSN_FILE"); v != "" {
        if b, err := os.ReadFile(v); err == nil { cfg.Postgres.DSN = strings.TrimSpace(string(b)) }
    }
    if v := os.Getenv("KEEPER_REDIS_PASSWORD"); v != "" {
        cfg.Redis.Password = v
    }
    if v := os.Getenv("KEEPER_REDIS_PASSWORD_FILE"); v != "" {
        if b, err := os.ReadFile(v); err == nil { cfg.Redis.Password = strings.TrimSpace(string(b)) }
    }
    // Defaults for maintenance cadence
    if cfg.Maintenance.IntervalMinutes <= 0 { cfg.Maintenance.IntervalMinutes = 60 }
    if cfg.Maintenance.RunTimeoutMinutes <= 0 { cfg.Maintenance.RunTimeoutMinutes = 30 }
    if cfg.Maintenance.Workers <= 0 { cfg.Maintenance.Workers = 4 }
    if cfg.Maintenance.AnalyzeAfterDays <= 0 { cfg.Maintenance.AnalyzeAfterDays = 7 }
    // Default managed tables match the platform schema; deployments override
    // them to tune horizons per table.
    if len(cfg.Tables) == 0 {
        cfg.Tables = DefaultTables()
    }
    for i := range cfg.Tables {
        t := &cfg.Tables[i]
        if t.PartitionColumn == "" { t.PartitionColumn = "created_at" }
        if t.RetentionMonths <= 0 { t.RetentionMonths = 24 }
        if t.AheadMonths <= 0 { t.AheadMonths = 12 }
        if t.IndexTemplate == "" { t.IndexTemplate = t.Name }
    }
    if err := validateTables(cfg.Tables); err != nil { return nil, err }
	return &cfg, nil
}

// DefaultTables returns the two managed tables with their production horizons.
func DefaultTables() []TableConfig {
    return []TableConfig{
        {Name: "alerts", PartitionColumn: "created_at", RetentionMonths: 24, AheadMonths: 12, IndexTemplate: "alerts"},
        {Name: "transactions", PartitionColumn: "occurred_at", RetentionMonths: 36, AheadMonths: 12, IndexTemplate: "transactions"},
    }
}

func validateTables(tables []TableConfig) error {
    seen := map[string]bool{}
    for _, t := range tables {
        if t.Name == "" { return fmt.Errorf("table with empty name") }
        if seen[t.Name] { return fmt.Errorf("duplicate table %q", t.Name) }
        seen[t.Name] = true
    }
    return nil
}

func (c *Config) String() string {
    return fmt.Sprintf("listen=%s tables=%d", c.Server.Listen, len(c.Tables))
}
