package reports

import (
	"context"
	"time"

	"github.com/mmdatafocus/kiosk_backend/config"
	"github.com/mmdatafocus/kiosk_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("kiosk-ledger/reports")

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func reportCacheTTL() time.Duration {
	// Env: REPORT_CACHE_TTL_SECONDS (default 120s)
	return time.Duration(config.IntFromEnv("REPORT_CACHE_TTL_SECONDS", 120)) * time.Second
}

func reportSlowMs() int64 {
	// Env: REPORT_SLOW_MS (default 500ms)
	return int64(config.IntFromEnv("REPORT_SLOW_MS", 500))
}

func logSlowReport(ctx context.Context, name string, started time.Time, extra map[string]any) {
	d := time.Since(started)
	if d.Milliseconds() < reportSlowMs() {
		return
	}
	logger := config.GetLogger()
	if logger == nil {
		return
	}
	biz, _ := utils.GetBusinessIdFromContext(ctx)
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	logger.WithFields(logrus.Fields{
		"report":         name,
		"ms":             d.Milliseconds(),
		"business_id":    biz,
		"correlation_id": cid,
		"extra":          extra,
	}).Warn("slow_report")
}

func cacheGet[T any](key string, dest *T) (bool, error) {
	return config.GetRedisObject(key, dest)
}

func cacheSet(key string, obj any, ttl time.Duration) error {
	return config.SetRedisObject(key, obj, ttl)
}
