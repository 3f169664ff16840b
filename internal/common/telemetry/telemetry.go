// File path: internal/common/telemetry/telemetry.go
package telemetry

import (
	"context"
	"expvar"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nicodishanthj/Peregrine_phase1/internal/common"
)

type spanKey struct{}

type span struct {
	name  string
	start time.Time
}

type MemoryLimitError struct {
	Component string
	Usage     uint64
	Limit     uint64
}

func (e MemoryLimitError) Error() string {
	return fmt.Sprintf("memory limit exceeded for %s: %d > %d", e.Component, e.Usage, e.Limit)
}

var (
	initOnce sync.Once

	workbookParseTotal     *expvar.Int
	workbookRowsTotal      *expvar.Int
	workbookParseLatencyMS *expvar.Int

	assessmentRunsTotal *expvar.Int
	assessmentVMsTotal  *expvar.Int

	pricingLookupTotal     *expvar.Map
	pricingLookupLatencyMS *expvar.Map

	exportTotal     *expvar.Map
	exportLatencyMS *expvar.Map

	memoryLimitBytes uint64
	memoryLimitVar   *expvar.Int
	memoryUsageVar   *expvar.Int
)

func ensureInit() {
	initOnce.Do(func() {
		workbookParseTotal = expvar.NewInt("peregrine_workbook_parse_total")
		workbookRowsTotal = expvar.NewInt("peregrine_workbook_rows_total")
		workbookParseLatencyMS = expvar.NewInt("peregrine_workbook_parse_latency_ms")

		assessmentRunsTotal = expvar.NewInt("peregrine_assessment_runs_total")
		assessmentVMsTotal = expvar.NewInt("peregrine_assessment_vms_total")

		pricingLookupTotal = expvar.NewMap("peregrine_pricing_lookup_total")
		pricingLookupLatencyMS = expvar.NewMap("peregrine_pricing_lookup_latency_ms")

		exportTotal = expvar.NewMap("peregrine_export_total")
		exportLatencyMS = expvar.NewMap("peregrine_export_latency_ms")

		memoryLimitVar = expvar.NewInt("peregrine_memory_limit_bytes")
		memoryUsageVar = expvar.NewInt("peregrine_memory_usage_bytes")

		memoryLimitBytes = loadMemoryLimit()
		memoryLimitVar.Set(int64(memoryLimitBytes))
	})
}

func loadMemoryLimit() uint64 {
	limit := strings.TrimSpace(os.Getenv("PEREGRINE_MEMORY_LIMIT_BYTES"))
	if limit != "" {
		if value, err := strconv.ParseUint(limit, 10, 64); err == nil {
			return value
		}
	}
	if limitMB := strings.TrimSpace(os.Getenv("PEREGRINE_MEMORY_LIMIT_MB")); limitMB != "" {
		if value, err := strconv.ParseUint(limitMB, 10, 64); err == nil {
			return value * 1024 * 1024
		}
	}
	return 0
}

func StartSpan(ctx context.Context, name string) (context.Context, func(attrs ...interface{})) {
	ensureInit()
	sp := &span{name: name, start: time.Now()}
	ctx = context.WithValue(ctx, spanKey{}, sp)
	logger := common.Logger()
	logger.Debug("trace: start", "span", name)
	return ctx, func(attrs ...interface{}) {
		if sp == nil {
			return
		}
		duration := time.Since(sp.start)
		logger.Debug("trace: end", append([]interface{}{"span", name, "dur", duration}, attrs...)...)
	}
}

// RecordWorkbookParse tracks one parsed workbook and its row volume.
func RecordWorkbookParse(rows int, duration time.Duration) {
	ensureInit()
	workbookParseTotal.Add(1)
	if rows > 0 {
		workbookRowsTotal.Add(int64(rows))
	}
	if duration > 0 {
		workbookParseLatencyMS.Add(duration.Milliseconds())
	}
}

// RecordAssessment tracks one assessment run over the given VM count.
func RecordAssessment(vms int) {
	ensureInit()
	assessmentRunsTotal.Add(1)
	if vms > 0 {
		assessmentVMsTotal.Add(int64(vms))
	}
}

// RecordPricingLookup tracks a pricing fetch by source (live, cached, static).
func RecordPricingLookup(source string, duration time.Duration) {
	ensureInit()
	key := strings.TrimSpace(strings.ToLower(source))
	if key == "" {
		key = "unknown"
	}
	pricingLookupTotal.Add(key, 1)
	if duration > 0 {
		pricingLookupLatencyMS.Add(key, duration.Milliseconds())
	}
}

// RecordExport tracks one rendered artifact by format.
func RecordExport(format string, duration time.Duration) {
	ensureInit()
	key := strings.TrimSpace(strings.ToLower(format))
	if key == "" {
		key = "unknown"
	}
	exportTotal.Add(key, 1)
	if duration > 0 {
		exportLatencyMS.Add(key, duration.Milliseconds())
	}
}

// CheckMemoryBudget returns a MemoryLimitError when the configured budget is
// exceeded. With no budget configured it only refreshes the usage gauge.
func CheckMemoryBudget(component string) error {
	ensureInit()
	if memoryLimitBytes == 0 {
		updateMemoryUsage()
		return nil
	}
	usage := updateMemoryUsage()
	if usage > memoryLimitBytes {
		err := MemoryLimitError{Component: component, Usage: usage, Limit: memoryLimitBytes}
		common.Logger().Warn("telemetry: memory guard tripped", "component", component, "usage", usage, "limit", memoryLimitBytes)
		return err
	}
	return nil
}

func updateMemoryUsage() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	usage := stats.Alloc
	memoryUsageVar.Set(int64(usage))
	return usage
}

func SpanDuration(ctx context.Context) time.Duration {
	sp, _ := ctx.Value(spanKey{}).(*span)
	if sp == nil {
		return 0
	}
	return time.Since(sp.start)
}
