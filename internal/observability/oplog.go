package observability

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/apolmig/smartqr-backend/internal/pkg/logger"
)

// OperationEntry is one structured record of a repository operation, kept for
// the health surface and pattern analysis.
type OperationEntry struct {
	Time       time.Time `json:"time"`
	Op         string    `json:"op"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Attempts   int       `json:"attempts,omitempty"`
	Warnings   []string  `json:"warnings,omitempty"`
}

// OpStats aggregates entries per operation name.
type OpStats struct {
	Count    int     `json:"count"`
	Errors   int     `json:"errors"`
	Warnings int     `json:"warnings"`
	AvgMs    float64 `json:"avg_ms"`
}

// OperationLog keeps the most recent operations in a fixed-size ring and,
// when REDIS_ADDR is set, fans each entry out on a Redis channel for external
// pattern analysis. Publish failures are logged and dropped; diagnostics
// must never block or fail the operation being recorded.
type OperationLog struct {
	mu   sync.Mutex
	buf  []OperationEntry
	next int
	full bool

	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewOperationLog(baseLog *logger.Logger, capacity int) *OperationLog {
	if capacity <= 0 {
		capacity = 256
	}
	l := &OperationLog{
		buf: make([]OperationEntry, capacity),
		log: baseLog.With("component", "OperationLog"),
	}

	if addr := strings.TrimSpace(os.Getenv("REDIS_ADDR")); addr != "" {
		ch := strings.TrimSpace(os.Getenv("REDIS_DIAGNOSTICS_CHANNEL"))
		if ch == "" {
			ch = "smartqr:ops"
		}
		rdb := goredis.NewClient(&goredis.Options{
			Addr:        addr,
			DialTimeout: 5 * time.Second,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			l.log.Warn("redis unreachable, diagnostics stay in-process", "error", err)
			_ = rdb.Close()
		} else {
			l.rdb = rdb
			l.channel = ch
			l.log.Info("diagnostics publishing enabled", "channel", ch)
		}
	}
	return l
}

func (l *OperationLog) Record(e OperationEntry) {
	if l == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	l.mu.Lock()
	l.buf[l.next] = e
	l.next = (l.next + 1) % len(l.buf)
	if l.next == 0 {
		l.full = true
	}
	l.mu.Unlock()

	if l.rdb != nil {
		raw, err := json.Marshal(e)
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.rdb.Publish(ctx, l.channel, raw).Err(); err != nil {
			l.log.Debug("diagnostics publish failed", "error", err)
		}
	}
}

// Recent returns up to n entries, newest first.
func (l *OperationLog) Recent(n int) []OperationEntry {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	size := l.next
	if l.full {
		size = len(l.buf)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]OperationEntry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (l.next - i + len(l.buf)) % len(l.buf)
		out = append(out, l.buf[idx])
	}
	return out
}

// Summary aggregates the resident entries per operation.
func (l *OperationLog) Summary() map[string]OpStats {
	entries := l.Recent(0)
	out := make(map[string]OpStats)
	totals := make(map[string]int64)
	for _, e := range entries {
		s := out[e.Op]
		s.Count++
		if e.Outcome != "ok" {
			s.Errors++
		}
		if len(e.Warnings) > 0 {
			s.Warnings++
		}
		totals[e.Op] += e.DurationMs
		out[e.Op] = s
	}
	for op, s := range out {
		if s.Count > 0 {
			s.AvgMs = float64(totals[op]) / float64(s.Count)
			out[op] = s
		}
	}
	return out
}

func (l *OperationLog) Close() {
	if l == nil || l.rdb == nil {
		return
	}
	_ = l.rdb.Close()
}
