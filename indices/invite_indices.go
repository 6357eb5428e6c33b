package indices

import (
	"context"
	"encoding/json"
	"fmt"

	"roster/client/es"
	"roster/domain"
	"roster/event"
)

var (
	InviteIndexName = "invites"

	inviteIndexHandlerName = "inviteIndexer"

	IndexInvitesFunc = IndexInvites
)

// InviteDocument is the shape stored in elasticsearch. The search side only
// filters on projectId and id, the rest rides along for consumers.
type InviteDocument struct {
	domain.ProjectMemberInvite
}

func IndexInvites(ctx context.Context, invites []domain.ProjectMemberInvite) error {
	for i := range invites {
		doc := InviteDocument{ProjectMemberInvite: invites[i]}
		if err := es.IndexFunc(ctx, InviteIndexName, doc.ID, doc); err != nil {
			return fmt.Errorf("index invite %d: %w", doc.ID, err)
		}
	}
	return nil
}

// InviteIndexEventHandler mirrors invite lifecycle events into the search
// index. The payload carries the invite as committed, no re-read is needed.
func InviteIndexEventHandler(e *event.EventRecord) *event.EventHandleResult {
	if e.SourceType != event.SourceTypeInvite {
		return nil
	}

	invite := domain.ProjectMemberInvite{}
	if err := json.Unmarshal([]byte(e.Payload), &invite); err != nil {
		return &event.EventHandleResult{
			Message:           fmt.Sprintf("decode payload of event %d: %v", e.ID, err),
			HandlerIdentifier: inviteIndexHandlerName,
		}
	}

	if err := IndexInvitesFunc(context.Background(), []domain.ProjectMemberInvite{invite}); err != nil {
		return &event.EventHandleResult{
			Message:           fmt.Sprintf("index invite %d: %v", invite.ID, err),
			HandlerIdentifier: inviteIndexHandlerName,
		}
	}
	return &event.EventHandleResult{Success: true, HandlerIdentifier: inviteIndexHandlerName}
}

func RegisterInviteIndexer() {
	event.EventHandlers = append(event.EventHandlers, InviteIndexEventHandler)
}
