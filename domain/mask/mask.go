package mask

import (
	"strings"

	"roster/domain"
	"roster/session"
)

// Email hides the interior of the local part, keeping the first and last
// character and the domain: "john.doe@example.com" becomes "j**e@example.com".
// Applying it to an already masked address yields the same string, so masking
// is idempotent. Strings without a local part and an "@" are left untouched.
func Email(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at <= 0 {
		return addr
	}
	local := []rune(addr[:at])
	return string(local[0]) + "**" + string(local[len(local)-1]) + addr[at:]
}

// InviteEmails scrubs the email of every invite that the session is not
// allowed to see in clear: recipients see their own address, administrators
// see all of them.
func InviteEmails(invites []domain.ProjectMemberInvite, s *session.Session) []domain.ProjectMemberInvite {
	masked := make([]domain.ProjectMemberInvite, 0, len(invites))
	for _, invite := range invites {
		masked = append(masked, *InviteEmail(&invite, s))
	}
	return masked
}

func InviteEmail(invite *domain.ProjectMemberInvite, s *session.Session) *domain.ProjectMemberInvite {
	r := *invite
	if r.Email == "" {
		return &r
	}
	if s != nil && (s.Perms.HasAdminRole() || strings.EqualFold(s.Identity.Email, r.Email)) {
		return &r
	}
	r.Email = Email(r.Email)
	return &r
}
