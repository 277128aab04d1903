package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/retail_backend/config"
	"github.com/mmdatafocus/retail_backend/models"
	"github.com/mmdatafocus/retail_backend/utils"
	"github.com/sirupsen/logrus"
)

// PubSubPromoNotifier hands promo notifications to the mailer through a Pub/Sub topic.
type PubSubPromoNotifier struct {
	Topic  string
	Logger *logrus.Logger
}

func (n *PubSubPromoNotifier) SendPromoNotification(ctx context.Context, msg models.PromoNotification) bool {
	_, err := config.PublishJSONWithResult(ctx, n.Topic, msg, map[string]string{"type": "promo_code"})
	if err != nil {
		config.LogError(n.Logger, "workflow/promoNotification.go", "SendPromoNotification", "publish", msg.Code, err)
		return false
	}
	return true
}

// LogPromoNotifier only logs; used when no notification topic is configured.
type LogPromoNotifier struct {
	Logger *logrus.Logger
}

func (n *LogPromoNotifier) SendPromoNotification(ctx context.Context, msg models.PromoNotification) bool {
	if n.Logger != nil {
		n.Logger.WithFields(logrus.Fields{
			"field": "PromoNotification",
			"email": msg.Email,
			"code":  msg.Code,
		}).Info("promo notification")
	}
	return true
}

func NewPromoNotifierFromEnv(logger *logrus.Logger) models.PromoNotifier {
	if topic := config.NotificationTopic(); topic != "" {
		return &PubSubPromoNotifier{Topic: topic, Logger: logger}
	}
	return &LogPromoNotifier{Logger: logger}
}

// PromoNotificationRetrier periodically re-sends notifications that failed right after assignment.
// Only one instance across the fleet runs a pass at a time; the others skip it.
type PromoNotificationRetrier struct {
	Notifier  models.PromoNotifier
	Logger    *logrus.Logger
	Interval  time.Duration
	BatchSize int
	LockTTL   time.Duration
}

func NewPromoNotificationRetrier(notifier models.PromoNotifier, logger *logrus.Logger) *PromoNotificationRetrier {
	return &PromoNotificationRetrier{
		Notifier:  notifier,
		Logger:    logger,
		Interval:  5 * time.Minute,
		BatchSize: 100,
		LockTTL:   2 * time.Minute,
	}
}

func (r *PromoNotificationRetrier) Run(ctx context.Context) {
	ctx = utils.SetSkipLocationScopeInContext(ctx, true)
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.Interval):
		}
		if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, utils.ErrLockNotObtained) {
			config.LogError(r.Logger, "workflow/promoNotification.go", "Run", "retry pass", nil, err)
		}
	}
}

func (r *PromoNotificationRetrier) RunOnce(ctx context.Context) (int, error) {
	lock, err := utils.ObtainLock(ctx, "promo-notify", "retrier", r.LockTTL, "workflow/promoNotification.go", "RunOnce")
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			config.LogError(r.Logger, "workflow/promoNotification.go", "RunOnce", "release lock", nil, err)
		}
	}()

	sent, err := models.NotifyPendingRecipients(ctx, r.Notifier, r.BatchSize)
	if sent > 0 && r.Logger != nil {
		r.Logger.WithFields(logrus.Fields{
			"field": "PromoNotificationRetrier",
			"sent":  sent,
		}).Info("promo notifications re-sent")
	}
	return sent, err
}
