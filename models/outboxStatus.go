package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/kiosk_backend/config"
	"gorm.io/gorm"
)

var ErrOutboxRecordNotFound = errors.New("outbox record not found")

// OutboxStatus is the ops view of the latest outbox row for a ledger document.
type OutboxStatus struct {
	RecordId         int             `json:"record_id"`
	ReferenceType    LedgerEventType `json:"reference_type"`
	ReferenceId      int             `json:"reference_id"`
	PublishStatus    string          `json:"publish_status"`
	PublishAttempts  int             `json:"publish_attempts"`
	NextAttemptAt    *time.Time      `json:"next_attempt_at"`
	LastPublishError *string         `json:"last_publish_error"`
	CreatedAt        time.Time       `json:"created_at"`
	PublishedAt      *time.Time      `json:"published_at"`
}

func outboxDB(db *gorm.DB) *gorm.DB {
	if db == nil {
		return config.GetDB()
	}
	return db
}

func GetOutboxStatus(ctx context.Context, db *gorm.DB, tenant Tenant, referenceType LedgerEventType, referenceId int) (*OutboxStatus, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	var rec PubSubMessageRecord
	err := outboxDB(db).WithContext(tenant.Context(ctx)).
		Where("business_id = ? AND reference_type = ? AND reference_id = ?", tenant.BusinessId, referenceType, referenceId).
		Order("id DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOutboxRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &OutboxStatus{
		RecordId:         rec.ID,
		ReferenceType:    rec.ReferenceType,
		ReferenceId:      rec.ReferenceId,
		PublishStatus:    rec.PublishStatus,
		PublishAttempts:  rec.PublishAttempts,
		NextAttemptAt:    rec.NextAttemptAt,
		LastPublishError: rec.LastPublishError,
		CreatedAt:        rec.CreatedAt,
		PublishedAt:      rec.PublishedAt,
	}, nil
}

// ReplayOutboxMessage puts a FAILED or DEAD row back in the dispatch queue.
// Rows already SENT are left alone.
func ReplayOutboxMessage(ctx context.Context, db *gorm.DB, tenant Tenant, recordId int) (time.Time, error) {
	if err := tenant.Validate(); err != nil {
		return time.Time{}, err
	}
	now := time.Now().UTC()
	res := outboxDB(db).WithContext(tenant.Context(ctx)).
		Model(&PubSubMessageRecord{}).
		Where("id = ? AND business_id = ? AND publish_status IN ?", recordId, tenant.BusinessId,
			[]string{OutboxPublishStatusFailed, OutboxPublishStatusDead}).
		Updates(map[string]interface{}{
			"publish_status":     OutboxPublishStatusFailed,
			"publish_attempts":   0,
			"next_attempt_at":    &now,
			"locked_at":          nil,
			"locked_by":          nil,
			"last_publish_error": nil,
		})
	if res.Error != nil {
		return time.Time{}, res.Error
	}
	if res.RowsAffected == 0 {
		return time.Time{}, ErrOutboxRecordNotFound
	}
	return now, nil
}
