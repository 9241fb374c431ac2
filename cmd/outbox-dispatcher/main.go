package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mmdatafocus/kiosk_backend/config"
	"github.com/mmdatafocus/kiosk_backend/models"
	"github.com/mmdatafocus/kiosk_backend/workflow"
	"github.com/sirupsen/logrus"
)

// Runs the sale event dispatcher without the ops HTTP server.
func main() {
	once := flag.Bool("once", false, "Dispatch one page of due rows and exit")
	batchSize := flag.Int("batch-size", 50, "Rows claimed per poll")
	pollInterval := flag.Duration("poll", 500*time.Millisecond, "Delay between polls")
	maxAttempts := flag.Int("max-attempts", 20, "Publish attempts before a row is marked DEAD")
	businessID := flag.String("business-id", "", "Optional: only dispatch events of this business")
	eventTypes := flag.String("event-types", string(models.LedgerEventTypeSale), "Comma-separated ledger event types to dispatch")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()

	d := workflow.NewOutboxDispatcher(db, logger)
	d.BatchSize = *batchSize
	d.PollInterval = *pollInterval
	d.MaxAttempts = *maxAttempts
	d.BusinessId = strings.TrimSpace(*businessID)
	d.EventTypes = nil
	for _, t := range strings.Split(*eventTypes, ",") {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			d.EventTypes = append(d.EventTypes, models.LedgerEventType(t))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		n := d.DispatchOnce(ctx)
		fmt.Printf("attempted=%d\n", n)
		return
	}
	logger.WithFields(logrus.Fields{
		"field":         "OutboxDispatcher",
		"dispatcher_id": d.DispatcherID,
		"event_types":   d.EventTypes,
		"business_id":   d.BusinessId,
	}).Info("outbox dispatcher started")
	d.Run(ctx)
}
