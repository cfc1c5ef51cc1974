package rbac

import "testing"

func TestCan(t *testing.T) {
	policy := NewPolicy("curator")
	curator := []string{"member", "curator"}
	member := []string{"member"}

	cases := []struct {
		name   string
		action Action
		owner  bool
		roles  []string
		allow  bool
	}{
		{name: "anyone votes", action: ActionVote, owner: false, roles: nil, allow: true},
		{name: "owner edits", action: ActionEdit, owner: true, roles: member, allow: true},
		{name: "non-owner edit denied", action: ActionEdit, owner: false, roles: curator, allow: false},
		{name: "owner moves", action: ActionMove, owner: true, roles: member, allow: true},
		{name: "curator move denied", action: ActionMove, owner: false, roles: curator, allow: false},
		{name: "owner deletes", action: ActionDelete, owner: true, roles: member, allow: true},
		{name: "curator deletes", action: ActionDelete, owner: false, roles: curator, allow: true},
		{name: "member delete denied", action: ActionDelete, owner: false, roles: member, allow: false},
		{name: "curator retires", action: ActionRetire, owner: false, roles: curator, allow: true},
		{name: "owner retire denied", action: ActionRetire, owner: true, roles: member, allow: false},
		{name: "unknown action denied", action: Action("publish"), owner: true, roles: curator, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := policy.Can(tc.action, tc.owner, tc.roles); got != tc.allow {
				t.Fatalf("Can(%q, owner=%v, %v) = %v, want %v", tc.action, tc.owner, tc.roles, got, tc.allow)
			}
		})
	}
}

func TestModeratorMatchesCaseInsensitive(t *testing.T) {
	policy := NewPolicy("Curator")
	if !policy.Moderator([]string{"CURATOR"}) {
		t.Fatalf("role names from the platform differ only by case")
	}
	if policy.Moderator([]string{"curato"}) {
		t.Fatalf("prefix must not match")
	}
}
