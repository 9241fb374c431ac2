package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/kiosk_backend/config"
	"github.com/mmdatafocus/kiosk_backend/models"
	"github.com/mmdatafocus/kiosk_backend/models/reports"
)

func main() {
	businessID := flag.String("business-id", "", "Required: business id")
	fromDateStr := flag.String("from", "", "Required: first sale date (YYYY-MM-DD), inclusive")
	toDateStr := flag.String("to", "", "Optional: last sale date (YYYY-MM-DD), inclusive")
	groupBy := flag.String("group-by", "none", "none | item | parent")
	itemIDs := flag.String("items", "", "Optional: comma-separated item ids")
	parentID := flag.Int("parent-id", 0, "Optional: parent item id")
	out := flag.String("out", "profit_summary.xlsx", "Output .xlsx file")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}
	from, err := time.Parse("2006-01-02", strings.TrimSpace(*fromDateStr))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid from date: %v\n", err)
		os.Exit(1)
	}
	filter := reports.ProfitFilter{
		FromDate: from,
		GroupBy:  reports.ProfitGroupBy(strings.ToLower(strings.TrimSpace(*groupBy))),
	}
	if s := strings.TrimSpace(*toDateStr); s != "" {
		to, err := time.Parse("2006-01-02", s)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid to date: %v\n", err)
			os.Exit(1)
		}
		filter.ToDate = to.AddDate(0, 0, 1)
	}
	if s := strings.TrimSpace(*itemIDs); s != "" {
		for _, part := range strings.Split(s, ",") {
			id, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				fmt.Fprintf(os.Stderr, "invalid item id %q\n", part)
				os.Exit(1)
			}
			filter.ItemIds = append(filter.ItemIds, id)
		}
	}
	if *parentID > 0 {
		filter.ParentItemId = parentID
	}

	config.ConnectDatabaseWithRetry()
	if config.ReportCacheEnabled() {
		config.ConnectRedisWithRetry()
	}

	tenant := models.Tenant{BusinessId: strings.TrimSpace(*businessID)}
	rows, err := reports.GetProfitSummary(context.Background(), reports.GormProfitLineSource{DB: config.GetDB()}, tenant, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "profit summary: %v\n", err)
		os.Exit(1)
	}
	if err := reports.ExportProfitSummaryExcel(rows, *out); err != nil {
		fmt.Fprintf(os.Stderr, "export: %v\n", err)
		os.Exit(1)
	}
	for _, r := range rows {
		fmt.Printf("group=%d %q lines=%d qty=%s revenue=%s cost=%s profit=%s margin=%s%% unknown_cost_lines=%d\n",
			r.GroupId, r.GroupName, r.LineCount, r.QuantitySold, r.Revenue, r.Cost, r.Profit, r.Margin, r.UnknownCostLines)
	}
	fmt.Printf("wrote %s\n", *out)
}
