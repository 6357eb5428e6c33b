package event

import (
	"github.com/fundwit/go-commons/types"
)

const (
	SourceTypeInvite = "ProjectMemberInvite"
	SourceTypeMember = "ProjectMember"
)

// Domain event kinds published to the bus and the in-process channel.
const (
	KindInviteCreated = "project.member.invite.created"
	KindInviteUpdated = "project.member.invite.updated"
	KindMemberAdded   = "project.member.added"
	KindMemberRemoved = "project.member.removed"
)

type Event struct {
	Kind string `json:"kind"`

	SourceType string   `json:"sourceType"`
	SourceId   types.ID `json:"sourceId"`
	ProjectID  types.ID `json:"projectId"`

	// Payload is the JSON encoding of the source object at emission time.
	Payload string `json:"payload" sql:"type:TEXT"`

	CreatorId   types.ID `json:"creatorId"`
	CreatorName string   `json:"creatorName"`
}

// EventRecord is the persisted outbox row. Synced flips to true once every
// sink accepted the event; unsynced rows are redelivered by SyncUnsentEvents.
type EventRecord struct {
	ID types.ID `json:"id" gorm:"primary_key"`

	Event

	Timestamp types.Timestamp `json:"timestamp" sql:"type:DATETIME(6) NOT NULL"`
	Synced    bool            `json:"synced"`
}

func (r *EventRecord) TableName() string {
	return "events"
}
