package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/kiosk_backend/config"
	"github.com/sirupsen/logrus"
)

// ItemLocker serializes manual stock corrections for one item across instances.
// The returned release func is never nil.
type ItemLocker interface {
	LockItem(ctx context.Context, businessId string, itemId int) func()
}

type redisItemLocker struct {
	locker *redislock.Client
	logger *logrus.Logger
	ttl    time.Duration
}

// NewRedisItemLocker is best-effort: when Redis is down or the lock is busy the
// caller proceeds and relies on the item row lock inside its transaction.
func NewRedisItemLocker(locker *redislock.Client, logger *logrus.Logger) ItemLocker {
	return &redisItemLocker{locker: locker, logger: logger, ttl: 30 * time.Second}
}

func itemLockKey(businessId string, itemId int) string {
	return fmt.Sprintf("lock:item_stock:%s:%d", businessId, itemId)
}

func (l *redisItemLocker) LockItem(ctx context.Context, businessId string, itemId int) func() {
	if l == nil || l.locker == nil {
		return func() {}
	}
	opts := &redislock.Options{RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 20)}
	lock, err := l.locker.Obtain(ctx, itemLockKey(businessId, itemId), l.ttl, opts)
	if err != nil {
		if l.logger != nil {
			msg := "error obtaining redis lock; proceeding without redis lock"
			if errors.Is(err, redislock.ErrNotObtained) {
				msg = "could not obtain redis lock; proceeding without redis lock"
			}
			l.logger.WithFields(logrus.Fields{
				"field":       "ItemLocker",
				"business_id": businessId,
				"item_id":     itemId,
			}).Warn(msg + ": " + err.Error())
		}
		return func() {}
	}
	return func() {
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			config.LogError(l.logger, "itemLock.go", "LockItem", "Release", itemLockKey(businessId, itemId), err)
		}
	}
}

type noopItemLocker struct{}

func (noopItemLocker) LockItem(context.Context, string, int) func() { return func() {} }
