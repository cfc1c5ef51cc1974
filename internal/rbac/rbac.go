package rbac

import "strings"

type Action string

const (
	ActionVote   Action = "vote"
	ActionEdit   Action = "edit"
	ActionMove   Action = "move"
	ActionDelete Action = "delete"
	ActionRetire Action = "retire"
)

// Policy decides what an actor may do to a glossary entry. Ownership is
// decided by the caller against the entry's author; privilege means holding
// the configured moderator role.
type Policy struct {
	moderatorRole string
}

func NewPolicy(moderatorRole string) *Policy {
	return &Policy{moderatorRole: moderatorRole}
}

func (p *Policy) Moderator(roles []string) bool {
	for _, role := range roles {
		if strings.EqualFold(role, p.moderatorRole) {
			return true
		}
	}
	return false
}

func (p *Policy) Can(action Action, owner bool, roles []string) bool {
	switch action {
	case ActionVote:
		return true
	case ActionEdit, ActionMove:
		return owner
	case ActionDelete:
		return owner || p.Moderator(roles)
	case ActionRetire:
		return p.Moderator(roles)
	default:
		return false
	}
}
