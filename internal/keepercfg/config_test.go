package keepercfg

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	tmp, err := os.MkdirTemp("", "cfg-*")
	if err != nil { t.Fatal(err) }
	defer os.RemoveAll(tmp)
	cfgPath := filepath.Join(tmp, "keeper.yaml")
	// empty file -> defaults apply
	if err := os.WriteFile(cfgPath, []byte("{}"), 0o644); err != nil { t.Fatal(err) }
	cfg, err := Load(cfgPath)
	if err != nil { t.Fatal(err) }
	if cfg.Server.Listen == "" || len(cfg.Tables) != 2 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Maintenance.Workers <= 0 || cfg.Maintenance.AnalyzeAfterDays != 7 {
		t.Fatalf("maintenance defaults not applied: %+v", cfg.Maintenance)
	}
	// independent horizons per table
	byName := map[string]TableConfig{}
	for _, tc := range cfg.Tables { byName[tc.Name] = tc }
	if byName["alerts"].RetentionMonths != 24 || byName["transactions"].RetentionMonths != 36 {
		t.Fatalf("default horizons wrong: %+v", cfg.Tables)
	}
	if byName["transactions"].PartitionColumn != "occurred_at" {
		t.Fatalf("transactions partition column wrong: %+v", byName["transactions"])
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	tmp, err := os.MkdirTemp("", "cfg-*")
	if err != nil { t.Fatal(err) }
	defer os.RemoveAll(tmp)
	cfgPath := filepath.Join(tmp, "keeper.yaml")
	if err := os.WriteFile(cfgPath, []byte("server: {}\n"), 0o644); err != nil { t.Fatal(err) }
	os.Setenv("KEEPER_PG_DSN", "postgres://env")
	defer os.Unsetenv("KEEPER_PG_DSN")
	cfg, err := Load(cfgPath)
	if err != nil { t.Fatal(err) }
	if cfg.Postgres.DSN != "postgres://env" { t.Fatalf("env override failed: %+v", cfg.Postgres) }
	// DSN via file var
	path := filepath.Join(tmp, "dsn")
	_ = os.WriteFile(path, []byte("postgres://file\n"), 0o600)
	os.Setenv("KEEPER_PG_DSN_FILE", path)
	defer os.Unsetenv("KEEPER_PG_DSN_FILE")
	cfg, err = Load(cfgPath)
	if err != nil { t.Fatal(err) }
	if cfg.Postgres.DSN != "postgres://file" { t.Fatalf("file override failed: %+v", cfg.Postgres) }
}

func TestLoad_TableOverridesAndValidation(t *testing.T) {
	tmp, err := os.MkdirTemp("", "cfg-*")
	if err != nil { t.Fatal(err) }
	defer os.RemoveAll(tmp)
	cfgPath := filepath.Join(tmp, "keeper.yaml")
	body := "tables:\n  - name: transactions\n    partition_column: occurred_at\n    retention_months: 12\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil { t.Fatal(err) }
	cfg, err := Load(cfgPath)
	if err != nil { t.Fatal(err) }
	if len(cfg.Tables) != 1 || cfg.Tables[0].RetentionMonths != 12 || cfg.Tables[0].AheadMonths != 12 {
		t.Fatalf("override not applied: %+v", cfg.Tables)
	}

	dup := "tables:\n  - name: alerts\n  - name: alerts\n"
	if err := os.WriteFile(cfgPath, []byte(dup), 0o644); err != nil { t.Fatal(err) }
	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("expected error for duplicate table names")
	}
}
