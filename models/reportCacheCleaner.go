package models

import (
	"github.com/mmdatafocus/kiosk_backend/config"
)

// ProfitSummaryCachePrefix is the key prefix of every cached profit summary of a business.
func ProfitSummaryCachePrefix(businessId string) string {
	return "report:profit_summary:" + businessId + ":"
}

// RemoveProfitSummaryCache drops the business's cached summaries after new sales.
func RemoveProfitSummaryCache(businessId string) error {
	if businessId == "" {
		return nil
	}
	return config.RemoveRedisKeysByPattern(ProfitSummaryCachePrefix(businessId) + "*")
}
