package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/retail_backend/models"
	"github.com/mmdatafocus/retail_backend/utils/testdb"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 5 * time.Second},
		{attempt: 1, want: 5 * time.Second},
		{attempt: 2, want: 10 * time.Second},
		{attempt: 4, want: 40 * time.Second},
		{attempt: 7, want: 320 * time.Second},
		{attempt: 8, want: 10 * time.Minute},
		{attempt: 50, want: 10 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, publishBackoff(5*time.Second, tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestDispatchOnceWithoutDatabase(t *testing.T) {
	d := NewOutboxDispatcher(nil, nil, &LogAuditSink{})
	assert.Equal(t, 0, d.dispatchOnce(context.Background()))
	assert.NotEmpty(t, d.DispatcherID)
	assert.Equal(t, 50, d.BatchSize)
}

func TestDispatcherRunStopsOnCancel(t *testing.T) {
	d := NewOutboxDispatcher(nil, nil, nil)
	d.PollInterval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after cancel")
	}
}

func TestMarkPublishFailedLogsUpdateErrors(t *testing.T) {
	tests := []struct {
		name        string
		maxAttempts int
		context     string
	}{
		{name: "retry", maxAttempts: 20, context: "mark failed"},
		{name: "dead", maxAttempts: 1, context: "mark dead"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// no migration: every update on the outbox table fails
			db := testdb.Open(t)
			logger, hook := logtest.NewNullLogger()
			d := NewOutboxDispatcher(db, logger, &LogAuditSink{Logger: logger})
			d.MaxAttempts = tt.maxAttempts

			d.markPublishFailed(context.Background(), models.AuditOutboxRecord{ID: 7, PublishAttempts: 1}, errors.New("broker down"))

			var found bool
			for _, e := range hook.AllEntries() {
				if e.Data["funcName"] == "markPublishFailed" && e.Data["context"] == tt.context {
					found = true
					assert.Equal(t, 7, e.Data["data"])
				}
			}
			require.True(t, found, "update failure was not logged")
		})
	}
}

func TestMarkPublishSentLogsOnlyFailures(t *testing.T) {
	db := testdb.Open(t)
	require.NoError(t, db.AutoMigrate(&models.AuditOutboxRecord{}))
	logger, hook := logtest.NewNullLogger()
	d := NewOutboxDispatcher(db, logger, &LogAuditSink{Logger: logger})

	rec := models.AuditOutboxRecord{Entity: "Order", EntityId: 1, Action: models.AuditActionCreate, PublishStatus: models.OutboxPublishStatusProcessing}
	require.NoError(t, db.Create(&rec).Error)

	d.markPublishSent(context.Background(), rec.ID, "msg-1", time.Now().UTC())
	assert.Empty(t, hook.AllEntries())

	var stored models.AuditOutboxRecord
	require.NoError(t, db.First(&stored, rec.ID).Error)
	assert.Equal(t, models.OutboxPublishStatusSent, stored.PublishStatus)
}
