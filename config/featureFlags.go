package config

import (
	"os"
	"strings"
)

func envTrue(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y" || v == "on"
}

// SaleEventsEnabled makes RecordSale write an outbox row per committed sale,
// later published to Pub/Sub by cmd/outbox-dispatcher.
//
// Set via env:
// - ENABLE_SALE_EVENTS=true
func SaleEventsEnabled() bool {
	return envTrue("ENABLE_SALE_EVENTS")
}

// StrictActiveItems rejects sale lines for items flagged inactive.
//
// Set via env:
// - STRICT_ACTIVE_ITEMS=true
func StrictActiveItems() bool {
	return envTrue("STRICT_ACTIVE_ITEMS")
}

// ReportCacheEnabled turns on the Redis cache for profit summaries.
//
// Set via env:
// - ENABLE_REPORT_CACHE=true
func ReportCacheEnabled() bool {
	return envTrue("ENABLE_REPORT_CACHE")
}

// AvailableBatchPageSize is how many batches one FIFO page fetches (default 20).
func AvailableBatchPageSize() int {
	n := intFromEnv("AVAILABLE_BATCH_PAGE_SIZE", 20)
	if n <= 0 {
		return 20
	}
	return n
}

// DefaultPhoneRegion is the region used to parse customer phone numbers without a country prefix.
func DefaultPhoneRegion() string {
	v := strings.ToUpper(strings.TrimSpace(os.Getenv("DEFAULT_PHONE_REGION")))
	if v == "" {
		return "MM"
	}
	return v
}
