package event

import (
	"context"
	"encoding/json"

	"roster/client/bus"
	"roster/idgen"
	"roster/persistence"
	"roster/session"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
	"github.com/sony/sonyflake"
)

var (
	eventIdWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

	EventPersistCreateFunc = eventPersistCreate
	DeliverFunc            = Deliver
)

// Publish records a domain event and attempts delivery. The triggering state
// mutation has already committed: persistence or delivery problems are logged
// and never propagated back to the caller. An unsynced record is picked up
// later by SyncUnsentEvents, so each sink sees the event at least once.
func Publish(ctx context.Context, kind, sourceType string, sourceId, projectId types.ID,
	payload interface{}, identity session.Identity) *EventRecord {

	raw, err := json.Marshal(payload)
	if err != nil {
		logrus.Errorf("failed to encode payload of event %s for %s %d: %v", kind, sourceType, sourceId, err)
		return nil
	}

	record := &EventRecord{
		ID: idgen.NextID(eventIdWorker),
		Event: Event{
			Kind:       kind,
			SourceType: sourceType,
			SourceId:   sourceId,
			ProjectID:  projectId,
			Payload:    string(raw),

			CreatorId:   identity.ID,
			CreatorName: identity.Name,
		},
		Timestamp: types.CurrentTimestamp(),
		Synced:    false,
	}

	if err := EventPersistCreateFunc(record, persistence.ActiveDataSourceManager.GormDB(ctx)); err != nil {
		logrus.Errorf("failed to persist event %s for %s %d: %v", kind, sourceType, sourceId, err)
		return nil
	}

	if err := DeliverFunc(ctx, record); err != nil {
		logrus.Warnf("delivery of event %d (%s) failed, left for retry: %v", record.ID, record.Kind, err)
		return record
	}
	markSynced(ctx, record)
	return record
}

// Deliver pushes one record to the external bus and the in-process handlers.
func Deliver(ctx context.Context, record *EventRecord) error {
	if err := bus.PublishFunc(ctx, record.Kind, record); err != nil {
		return err
	}
	InvokeHandlersFunc(record)
	return nil
}

// SyncUnsentEvents redelivers unsynced records oldest-first. Ordering across
// concurrently published events is best effort only.
func SyncUnsentEvents(ctx context.Context, batchSize int) (int, error) {
	db := persistence.ActiveDataSourceManager.GormDB(ctx)

	records := []EventRecord{}
	if err := db.Where("synced = ?", false).Order("timestamp ASC").Limit(batchSize).Find(&records).Error; err != nil {
		return 0, err
	}

	synced := 0
	for i := range records {
		if err := DeliverFunc(ctx, &records[i]); err != nil {
			logrus.Warnf("redelivery of event %d (%s) failed: %v", records[i].ID, records[i].Kind, err)
			continue
		}
		markSynced(ctx, &records[i])
		synced++
	}
	return synced, nil
}

func markSynced(ctx context.Context, record *EventRecord) {
	db := persistence.ActiveDataSourceManager.GormDB(ctx)
	if err := db.Model(&EventRecord{}).Where("id = ?", record.ID).Update("synced", true).Error; err != nil {
		logrus.Warnf("failed to mark event %d synced: %v", record.ID, err)
		return
	}
	record.Synced = true
}

func eventPersistCreate(record *EventRecord, db *gorm.DB) error {
	return db.Create(record).Error
}
