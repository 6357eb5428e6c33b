package invite

import (
	"roster/domain"
	"roster/event"
	"roster/session"
)

// EventNotifier publishes invite lifecycle changes as domain events, which
// fan out to the message bus and the in-process handlers.
type EventNotifier struct {
}

func (EventNotifier) InviteCreated(invite *domain.ProjectMemberInvite, s *session.Session) {
	event.Publish(s.Context, event.KindInviteCreated, event.SourceTypeInvite, invite.ID, invite.ProjectID, invite, s.Identity)
}

func (EventNotifier) InviteUpdated(invite *domain.ProjectMemberInvite, s *session.Session) {
	event.Publish(s.Context, event.KindInviteUpdated, event.SourceTypeInvite, invite.ID, invite.ProjectID, invite, s.Identity)
}

func (EventNotifier) MemberAdded(member *domain.ProjectMember, s *session.Session) {
	event.Publish(s.Context, event.KindMemberAdded, event.SourceTypeMember, member.ID, member.ProjectID, member, s.Identity)
}
