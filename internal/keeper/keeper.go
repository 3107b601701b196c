package keeper

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "sync"
    "time"

    "github.com/example/partition-keeper/internal/data"
    "github.com/example/partition-keeper/internal/keepercfg"
    "github.com/example/partition-keeper/internal/logging"
    "github.com/example/partition-keeper/internal/metrics"
    "github.com/example/partition-keeper/internal/partition"
    "github.com/example/partition-keeper/internal/query"
)

// ErrRunInProgress is returned when a maintenance run is requested while
// another replica (or this one) holds the lease.
var ErrRunInProgress = errors.New("maintenance run already in progress")

// Keeper wires the lifecycle components together and owns the service
// surface: the admin HTTP mux and the periodic maintenance loop.
type Keeper struct {
    cfg *keepercfg.Config
    pg  *data.Postgres
    rd  *data.Redis
    tables []partition.Table
    maintainer *partition.Maintainer
    router *query.Router
    ev *logging.EventLogger

    // localMu guards runs when Redis is disabled (single-instance mode).
    localMu sync.Mutex
}

func New(configPath string) (*Keeper, error) {
    cfg, err := keepercfg.Load(configPath)
    if err != nil {
        return nil, fmt.Errorf("load config: %w", err)
    }
    return &Keeper{cfg: cfg, ev: logging.NewEventLogger()}, nil
}

// Tables converts the configured table policies into domain tables.
func Tables(cfg *keepercfg.Config) []partition.Table {
    out := make([]partition.Table, 0, len(cfg.Tables))
    for _, t := range cfg.Tables {
        out = append(out, partition.Table{
            Name: t.Name,
            Column: t.PartitionColumn,
            RetentionMonths: t.RetentionMonths,
            AheadMonths: t.AheadMonths,
            Template: t.IndexTemplate,
        })
    }
    return out
}

func (k *Keeper) Start(ctx context.Context) error {
    stopLog := logging.Init(k.cfg.Logging)
    defer stopLog()
    logging.Info("keeper_start", logging.F("listen", k.cfg.Server.Listen), logging.F("tables", len(k.cfg.Tables)))

    pg, err := data.NewPostgres(ctx, k.cfg.Postgres)
    if err != nil {
        k.ev.Infra("connect", "postgres", "failed", err.Error())
        return err
    }
    k.pg = pg
    k.ev.Infra("connect", "postgres", "success", "")

    rd, err := data.NewRedis(k.cfg.Redis)
    if err != nil {
        k.ev.Infra("connect", "redis", "failed", err.Error())
        return err
    }
    k.rd = rd

    k.tables = Tables(k.cfg)
    catalog := partition.NewCatalog(pg.Pool())
    creator := partition.NewCreator(pg.Pool(), catalog)
    reaper := partition.NewReaper(pg.Pool(), catalog)
    k.maintainer = partition.NewMaintainer(pg.Pool(), catalog, creator, reaper, k.tables,
        k.cfg.Maintenance.Workers, time.Duration(k.cfg.Maintenance.AnalyzeAfterDays)*24*time.Hour)
    k.router = query.NewRouter(pg.Pool())

    // Setup: fill the ahead window before serving anything, so the write
    // path never creates on demand in the common case.
    for _, t := range k.tables {
        if _, err := creator.EnsureAheadPartitions(ctx, t, t.AheadMonths); err != nil {
            return fmt.Errorf("initial ahead provisioning for %s: %w", t.Name, err)
        }
    }

    mux := http.NewServeMux()
    mux.Handle("/metrics", metrics.Handler())
    mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); _, _ = w.Write([]byte("ok")) })
    mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); _, _ = w.Write([]byte("ready")) })
    mux.HandleFunc("/maintain", k.handleMaintain)
    server := &http.Server{Addr: k.cfg.Server.Listen, Handler: mux}

    go k.maintenanceLoop(ctx)

    go func() {
        <-ctx.Done()
        shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
        defer cancel()
        _ = server.Shutdown(shutdownCtx)
        if k.rd != nil { _ = k.rd.Close() }
        if k.pg != nil { k.pg.Close() }
    }()

    if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
        return err
    }
    return nil
}

func (k *Keeper) maintenanceLoop(ctx context.Context) {
    interval := time.Duration(k.cfg.Maintenance.IntervalMinutes) * time.Minute
    ticker := time.NewTicker(interval)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            if _, err := k.RunMaintenance(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
                logging.Error("maintenance_run_failed", logging.Err(err))
            }
        }
    }
}

// RunMaintenance executes one aggregate run under the lease. At most one
// run is active at a time across replicas; a second request is refused with
// ErrRunInProgress rather than queued.
func (k *Keeper) RunMaintenance(ctx context.Context) (partition.Summary, error) {
    timeout := time.Duration(k.cfg.Maintenance.RunTimeoutMinutes) * time.Minute
    runCtx, cancel := context.WithTimeout(ctx, timeout)
    defer cancel()

    if mu := k.rd.MaintenanceLease(timeout); mu != nil {
        if err := mu.TryLockContext(runCtx); err != nil {
            metrics.RunsSkipped.Inc()
            k.ev.Run("skipped_locked", "", 0, 0, 0)
            return partition.Summary{}, ErrRunInProgress
        }
        defer func() {
            if _, err := mu.UnlockContext(context.Background()); err != nil {
                // Lease expires on its own; just note it.
                logging.Warn("lease_unlock_failed", logging.Err(err))
            }
        }()
        return k.maintainer.Run(runCtx)
    }

    if !k.localMu.TryLock() {
        metrics.RunsSkipped.Inc()
        k.ev.Run("skipped_locked", "", 0, 0, 0)
        return partition.Summary{}, ErrRunInProgress
    }
    defer k.localMu.Unlock()
    return k.maintainer.Run(runCtx)
}

func (k *Keeper) handleMaintain(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    sum, err := k.RunMaintenance(r.Context())
    if err != nil {
        code := http.StatusInternalServerError
        if errors.Is(err, ErrRunInProgress) {
            code = http.StatusConflict
        }
        w.WriteHeader(code)
        _ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
        return
    }
    w.Header().Set("Content-Type", "application/json")
    _ = json.NewEncoder(w).Encode(sum)
}

// Router exposes the read API for embedding callers (and tests).
func (k *Keeper) Router() *query.Router { return k.router }
