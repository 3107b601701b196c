package logging

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/example/partition-keeper/internal/keepercfg"
)

type Level int32

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

type Field struct {
	Key   string
	Value any
}

func F(key string, value any) Field { return Field{Key: key, Value: value} }
func Err(err error) Field {
    if err == nil { return Field{Key: "err", Value: nil} }
    return Field{Key: "err", Value: err.Error()}
}

// record is one emitted log line. Service is constant so multiplexed
// container logs stay attributable.
type record struct {
	TS      int64          `json:"ts"`
	Service string         `json:"service"`
	Level   string         `json:"level"`
	Msg     string         `json:"msg"`
	Fields  map[string]any `json:"fields,omitempty"`
}

const serviceName = "partition-keeper"

var (
    logLevel atomic.Int32
    logCh    chan record
    dropped  atomic.Int64
)

func parseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Init starts the buffered async writer and returns a stop function that
// flushes whatever is still queued. Emission never blocks the caller: when
// the buffer is full the line is counted as dropped instead.
func Init(cfg keepercfg.LoggingConfig) func() {
    if cfg.Buffer <= 0 {
        cfg.Buffer = 4096
    }
    ch := make(chan record, cfg.Buffer)
    logCh = ch
    logLevel.Store(int32(parseLevel(cfg.Level)))
    var w io.Writer
    switch cfg.Output {
    case "stderr":
        w = os.Stderr
    case "stdout", "":
        w = os.Stdout
    default:
        f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
        if err != nil {
            w = os.Stdout
        } else {
            w = f
        }
    }
    stop := make(chan struct{})
    go drain(ch, stop, w)
    return func() { close(stop) }
}

func drain(ch <-chan record, stop <-chan struct{}, w io.Writer) {
    ticker := time.NewTicker(10 * time.Second)
    defer ticker.Stop()
    enc := json.NewEncoder(w)
    reportDropped := func() {
        if n := dropped.Swap(0); n > 0 {
            _ = enc.Encode(record{TS: time.Now().UnixNano(), Service: serviceName, Level: "warn",
                Msg: "logs_dropped", Fields: map[string]any{"count": n}})
        }
    }
    for {
        select {
        case r := <-ch:
            _ = enc.Encode(r)
        case <-ticker.C:
            reportDropped()
        case <-stop:
            for {
                select {
                case r := <-ch:
                    _ = enc.Encode(r)
                default:
                    reportDropped()
                    return
                }
            }
        }
    }
}

func allowed(l Level) bool { return l >= Level(logLevel.Load()) }

func log(lvl Level, msg string, fields ...Field) {
	if !allowed(lvl) || logCh == nil {
		return
	}
	r := record{TS: time.Now().UnixNano(), Service: serviceName, Level: toStr(lvl), Msg: msg}
	if len(fields) > 0 {
		fm := make(map[string]any, len(fields))
		for _, f := range fields {
			fm[f.Key] = f.Value
		}
		r.Fields = fm
	}
	select {
	case logCh <- r:
	default:
		dropped.Add(1)
	}
}

func toStr(l Level) string {
	switch l {
	case DebugLevel:
		return "debug"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "info"
	}
}

func Debug(msg string, fields ...Field) { log(DebugLevel, msg, fields...) }
func Info(msg string, fields ...Field)  { log(InfoLevel, msg, fields...) }
func Warn(msg string, fields ...Field)  { log(WarnLevel, msg, fields...) }
func Error(msg string, fields ...Field) { log(ErrorLevel, msg, fields...) }
