package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mmdatafocus/kiosk_backend/config"
	"gorm.io/gorm"
)

const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

type LedgerEventType string

const (
	LedgerEventTypeSale LedgerEventType = "SALE"
)

const LedgerEventActionCreate = "C"

// PubSubMessageRecord is the transactional outbox row. It is written in the
// same transaction as the ledger change and published after commit.
type PubSubMessageRecord struct {
	ID                  int             `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	BusinessId          string          `gorm:"size:64;not null;index" json:"business_id"`
	TransactionDateTime time.Time       `gorm:"index;not null" json:"transaction_date_time"`
	ReferenceId         int             `json:"reference_id"`
	ReferenceType       LedgerEventType `gorm:"size:30;not null" json:"reference_type"`
	Action              string          `gorm:"size:1;not null" json:"action"`
	NewObj              []byte          `gorm:"type:blob" json:"new_obj"`
	PublishStatus       string          `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"`
	PublishedAt         *time.Time      `gorm:"index" json:"published_at"`
	PubSubMessageId     *string         `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts     int             `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt       *time.Time      `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt            *time.Time      `gorm:"index" json:"locked_at"`
	LockedBy            *string         `gorm:"size:100" json:"locked_by"`
	LastPublishError    *string         `gorm:"type:text" json:"last_publish_error"`
	CorrelationId       string          `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewLedgerEvent marshals obj into a pending outbox record.
func NewLedgerEvent(businessId string, refType LedgerEventType, refId int, at time.Time, correlationId string, obj any) (*PubSubMessageRecord, error) {
	payload, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return &PubSubMessageRecord{
		BusinessId:          businessId,
		TransactionDateTime: at,
		ReferenceId:         refId,
		ReferenceType:       refType,
		Action:              LedgerEventActionCreate,
		NewObj:              payload,
		PublishStatus:       OutboxPublishStatusPending,
		CorrelationId:       correlationId,
	}, nil
}

func ConvertToPubSubMessage(record PubSubMessageRecord) config.PubSubMessage {
	return config.PubSubMessage{
		ID:                  record.ID,
		BusinessId:          record.BusinessId,
		TransactionDateTime: record.TransactionDateTime,
		ReferenceId:         record.ReferenceId,
		ReferenceType:       string(record.ReferenceType),
		Action:              record.Action,
		NewObj:              record.NewObj,
		CorrelationId:       record.CorrelationId,
	}
}

func createOutboxMessage(ctx context.Context, tx *gorm.DB, msg *PubSubMessageRecord) error {
	return tx.WithContext(ctx).Create(msg).Error
}
