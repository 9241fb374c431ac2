package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/kiosk_backend/config"
	"github.com/mmdatafocus/kiosk_backend/models"
	"github.com/mmdatafocus/kiosk_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxPublishBackoff = 10 * time.Minute

// OutboxDispatcher publishes ledger events written by committed sales.
type OutboxDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	DispatcherID string
	Publish      func(ctx context.Context, msg config.PubSubMessage) (string, error)

	// EventTypes limits which ledger events this dispatcher claims.
	EventTypes []models.LedgerEventType
	// BusinessId, when set, limits dispatch to one business.
	BusinessId string

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

func NewOutboxDispatcher(db *gorm.DB, logger *logrus.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		DB:             db,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		Publish:        config.PublishLedgerEvent,
		EventTypes:     []models.LedgerEventType{models.LedgerEventTypeSale},
		BatchSize:      50,
		PollInterval:   500 * time.Millisecond,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
	}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	interval := d.PollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d.DispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// eventClaim is the dispatcher's decision for one claimed ledger event.
type eventClaim int

const (
	claimPublish eventClaim = iota
	claimBury
)

// claimFor decides whether a claimed event is published or buried as DEAD.
func claimFor(ev models.PubSubMessageRecord, maxAttempts int) eventClaim {
	if maxAttempts > 0 && ev.PublishAttempts >= maxAttempts {
		return claimBury
	}
	return claimPublish
}

// publishResult builds the column updates for an event after one publish
// attempt. attempt is the attempt count including this one.
func publishResult(pubID string, pubErr error, attempt, maxAttempts int, initial time.Duration, now time.Time) map[string]interface{} {
	released := map[string]interface{}{
		"locked_at":       nil,
		"locked_by":       nil,
		"next_attempt_at": nil,
	}
	if pubErr == nil {
		released["publish_status"] = models.OutboxPublishStatusSent
		released["published_at"] = &now
		released["pub_sub_message_id"] = &pubID
		return released
	}
	msg := pubErr.Error()
	released["last_publish_error"] = &msg
	if maxAttempts > 0 && attempt >= maxAttempts {
		released["publish_status"] = models.OutboxPublishStatusDead
		return released
	}
	next := now.Add(publishBackoff(initial, attempt))
	released["publish_status"] = models.OutboxPublishStatusFailed
	released["next_attempt_at"] = &next
	return released
}

func (d *OutboxDispatcher) eventTypes() []models.LedgerEventType {
	if len(d.EventTypes) == 0 {
		return []models.LedgerEventType{models.LedgerEventTypeSale}
	}
	return d.EventTypes
}

func (d *OutboxDispatcher) dueEvents(tx *gorm.DB, now time.Time) *gorm.DB {
	q := tx.Model(&models.PubSubMessageRecord{}).
		Where("reference_type IN ?", d.eventTypes()).
		Where(`(publish_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?))
			OR (publish_status = ? AND locked_at IS NOT NULL AND locked_at <= ?)`,
			[]string{models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed}, now,
			models.OutboxPublishStatusProcessing, now.Add(-d.LockTimeout))
	if d.BusinessId != "" {
		q = q.Where("business_id = ?", d.BusinessId)
	}
	return q.Order("id ASC").Limit(d.BatchSize).Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
}

// DispatchOnce claims one page of due sale events and publishes them. It
// returns the number of events it attempted to publish.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) int {
	if d.DB == nil {
		return 0
	}
	now := time.Now().UTC()
	// events of every business are dispatched unless BusinessId is set
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)

	var due []models.PubSubMessageRecord
	var claimed []models.PubSubMessageRecord
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := d.dueEvents(tx, now).Find(&due).Error; err != nil {
			return err
		}
		for _, ev := range due {
			updates := map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusProcessing,
				"locked_at":          &now,
				"locked_by":          &d.DispatcherID,
				"publish_attempts":   gorm.Expr("publish_attempts + 1"),
				"last_publish_error": nil,
				"next_attempt_at":    nil,
			}
			if claimFor(ev, d.MaxAttempts) == claimBury {
				msg := fmt.Sprintf("%s %d: max publish attempts exceeded (%d)", ev.ReferenceType, ev.ReferenceId, d.MaxAttempts)
				updates = map[string]interface{}{
					"publish_status":     models.OutboxPublishStatusDead,
					"last_publish_error": &msg,
					"next_attempt_at":    nil,
					"locked_at":          nil,
					"locked_by":          nil,
				}
			} else {
				ev.PublishAttempts++
				claimed = append(claimed, ev)
			}
			if err := tx.Model(&models.PubSubMessageRecord{}).Where("id = ?", ev.ID).Updates(updates).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		config.LogError(d.Logger, "outboxDispatcher.go", "DispatchOnce", "claim", d.DispatcherID, err)
		return 0
	}

	for _, ev := range claimed {
		pubID, pubErr := d.Publish(ctx, models.ConvertToPubSubMessage(ev))
		d.settle(ctx, ev, pubID, pubErr)
	}
	return len(claimed)
}

func (d *OutboxDispatcher) settle(ctx context.Context, ev models.PubSubMessageRecord, pubID string, pubErr error) {
	updates := publishResult(pubID, pubErr, ev.PublishAttempts, d.MaxAttempts, d.InitialBackoff, time.Now().UTC())
	err := d.DB.WithContext(ctx).Model(&models.PubSubMessageRecord{}).Where("id = ?", ev.ID).Updates(updates).Error
	config.LogError(d.Logger, "outboxDispatcher.go", "settle", fmt.Sprintf("Updates %v", updates["publish_status"]), ev.ID, err)

	if pubErr == nil || d.Logger == nil {
		return
	}
	fields := logrus.Fields{
		"field":          "OutboxDispatcher",
		"business_id":    ev.BusinessId,
		"record_id":      ev.ID,
		"reference_type": ev.ReferenceType,
		"reference_id":   ev.ReferenceId,
		"attempt":        ev.PublishAttempts,
	}
	if next, ok := updates["next_attempt_at"].(*time.Time); ok && next != nil {
		fields["next_attempt_at"] = next.Format(time.RFC3339Nano)
	}
	d.Logger.WithFields(fields).Errorf("sale event publish %s: %v", updates["publish_status"], pubErr)
}

// publishBackoff doubles from initial per attempt, capped at ten minutes.
func publishBackoff(initial time.Duration, attempt int) time.Duration {
	if attempt <= 1 {
		return initial
	}
	backoff := initial
	for i := 1; i < attempt && backoff < maxPublishBackoff; i++ {
		backoff *= 2
	}
	return min(backoff, maxPublishBackoff)
}
