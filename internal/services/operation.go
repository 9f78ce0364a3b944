// internal/services/operation.go
package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/wildlife-licensing/internal/database"
	"github.com/javajoker/wildlife-licensing/internal/metrics"
)

// operation runs one workflow step: a single transaction, a metrics observation, and
// notifications that are only sent once the transaction has committed.
type operation struct {
	db       *gorm.DB
	metrics  *metrics.Metrics
	notifier Notifier
	name     string
	fields   logrus.Fields
}

func (o operation) run(ctx context.Context, fn func(tx *gorm.DB) ([]*Message, error)) error {
	start := time.Now()
	fields := logrus.Fields{"operation": o.name}
	for k, v := range o.fields {
		fields[k] = v
	}

	var messages []*Message
	err := database.WithTransaction(ctx, o.db, func(tx *gorm.DB) error {
		var err error
		messages, err = fn(tx)
		return err
	})
	o.metrics.ObserveTransition(o.name, start, outcome(err))

	if err != nil {
		if IsDomainError(err) {
			logrus.WithFields(fields).WithError(err).Warn("Workflow operation rejected")
		} else {
			logrus.WithFields(fields).WithError(err).Error("Workflow operation failed")
		}
		return err
	}

	logrus.WithFields(fields).Info("Workflow operation completed")
	dispatch(ctx, o.notifier, messages)
	return nil
}

// dispatch sends notifications. Failures are logged and never undo the committed change.
func dispatch(ctx context.Context, notifier Notifier, messages []*Message) {
	if notifier == nil {
		return
	}
	for _, msg := range messages {
		if _, err := notifier.Notify(ctx, msg); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"template":    msg.Template,
				"resource_id": msg.ResourceID,
			}).Error("Failed to send notification")
		}
	}
}
