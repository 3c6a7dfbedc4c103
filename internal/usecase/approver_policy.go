package usecase

import "strings"

// Actor identifies the Telegram user performing an action.
type Actor struct {
	TelegramID int64
	Username   string
}

// ApproverPolicy decides who may approve or reject requests. An actor is an
// approver when either its id or its username is configured.
type ApproverPolicy struct {
	ids       map[int64]struct{}
	usernames map[string]struct{}
}

func NewApproverPolicy(ids []int64, usernames []string) *ApproverPolicy {
	p := &ApproverPolicy{ids: map[int64]struct{}{}, usernames: map[string]struct{}{}}
	for _, id := range ids {
		if id > 0 {
			p.ids[id] = struct{}{}
		}
	}
	for _, u := range usernames {
		if u = normalizeUsername(u); u != "" {
			p.usernames[u] = struct{}{}
		}
	}
	return p
}

func (p *ApproverPolicy) Allows(a Actor) bool {
	if _, ok := p.ids[a.TelegramID]; ok {
		return true
	}
	if u := normalizeUsername(a.Username); u != "" {
		_, ok := p.usernames[u]
		return ok
	}
	return false
}

// IDs returns the configured approver ids.
func (p *ApproverPolicy) IDs() []int64 {
	out := make([]int64, 0, len(p.ids))
	for id := range p.ids {
		out = append(out, id)
	}
	return out
}

func normalizeUsername(u string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(u), "@"))
}
