package metrics

import (
    "net/http"

    prom "github.com/prometheus/client_golang/prometheus"
    promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    PartitionsCreated = prom.NewCounterVec(prom.CounterOpts{Name: "keeper_partitions_created_total", Help: "Partitions created, by table"}, []string{"table"})
    PartitionsDropped = prom.NewCounterVec(prom.CounterOpts{Name: "keeper_partitions_dropped_total", Help: "Partitions dropped by retention, by table"}, []string{"table"})
    PartitionsAnalyzed = prom.NewCounterVec(prom.CounterOpts{Name: "keeper_partitions_analyzed_total", Help: "ANALYZE operations issued, by table"}, []string{"table"})
    PartitionsVacuumed = prom.NewCounterVec(prom.CounterOpts{Name: "keeper_partitions_vacuumed_total", Help: "VACUUM operations issued, by table"}, []string{"table"})
    MaintenanceFailures = prom.NewCounterVec(prom.CounterOpts{Name: "keeper_maintenance_failures_total", Help: "Per-partition remediation failures, by table"}, []string{"table"})
    OutOfRetentionWrites = prom.NewCounter(prom.CounterOpts{Name: "keeper_out_of_retention_writes_total", Help: "Writes rejected because the target range was already reaped"})
    RunDuration = prom.NewHistogram(prom.HistogramOpts{Name: "keeper_run_duration_seconds", Help: "Aggregate maintenance run duration", Buckets: prom.ExponentialBuckets(0.1, 2, 12)})
    RunsSkipped = prom.NewCounter(prom.CounterOpts{Name: "keeper_runs_skipped_total", Help: "Maintenance runs skipped because the lease was held elsewhere"})
)

func init() {
    prom.MustRegister(PartitionsCreated, PartitionsDropped, PartitionsAnalyzed, PartitionsVacuumed, MaintenanceFailures, OutOfRetentionWrites, RunDuration, RunsSkipped)
}

func Handler() http.Handler { return promhttp.Handler() }
