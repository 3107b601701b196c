package logging

// EventLogger provides structured lifecycle event logging with a fixed
// event+action vocabulary so downstream parsers can rely on field names.
type EventLogger struct {
	log func(level Level, msg string, fields ...Field)
}

// NewEventLogger creates a new EventLogger backed by the global logging functions
func NewEventLogger() *EventLogger {
	return &EventLogger{
		log: log,
	}
}

// Partition logs partition lifecycle events
// action: create|create_ahead|drop|skip_existing
func (e *EventLogger) Partition(action, table, partition string, success bool, reason string) {
	level := InfoLevel
	if !success {
		level = ErrorLevel
	} else if action == "skip_existing" {
		level = DebugLevel
	}

	status := "success"
	if !success {
		status = "failed"
	}

	fields := []Field{
		F("event", "partition"),
		F("action", action),
		F("table", table),
		F("partition", partition),
		F("status", status),
	}
	if reason != "" {
		fields = append(fields, F("reason", reason))
	}
	e.log(level, "partition_event", fields...)
}

// Maintenance logs remediation events
// action: analyze|vacuum|report_index_usage
func (e *EventLogger) Maintenance(action, table, partition string, success bool, reason string) {
	level := DebugLevel
	if !success {
		level = WarnLevel // per-partition failures are retried next cycle
	} else if action == "report_index_usage" {
		level = WarnLevel // needs an operator, not auto-remediated
	}

	status := "success"
	if !success {
		status = "failed"
	}

	fields := []Field{
		F("event", "maintenance"),
		F("action", action),
		F("table", table),
		F("partition", partition),
		F("status", status),
	}
	if reason != "" {
		fields = append(fields, F("reason", reason))
	}
	e.log(level, "maintenance_event", fields...)
}

// Run logs aggregate maintenance run events
// action: start|finish|skipped_locked|timeout
func (e *EventLogger) Run(action, runID string, analyzed, compacted, dropped int) {
	level := InfoLevel
	if action == "skipped_locked" || action == "timeout" {
		level = WarnLevel
	}

	fields := []Field{
		F("event", "run"),
		F("action", action),
		F("run_id", runID),
	}
	if action == "finish" {
		fields = append(fields,
			F("analyzed", analyzed),
			F("compacted", compacted),
			F("dropped", dropped),
		)
	}
	e.log(level, "run_event", fields...)
}

// Infra logs infrastructure events
// action: connect|disconnect|error|retry
// component: redis|postgres|http
// status: success|failed
func (e *EventLogger) Infra(action, component, status, details string) {
	level := DebugLevel
	if status == "failed" {
		level = ErrorLevel
	} else if action == "error" {
		level = ErrorLevel
	} else if action == "retry" {
		level = WarnLevel
	}

	fields := []Field{
		F("event", "infra"),
		F("action", action),
		F("component", component),
		F("status", status),
	}
	if details != "" {
		fields = append(fields, F("details", details))
	}
	e.log(level, "infra_event", fields...)
}
