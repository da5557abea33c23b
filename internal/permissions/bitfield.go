package permissions

import (
	"strings"

	"github.com/rivaldorose/konsensi-workspace/internal/models"
)

// Permission is a bitfield of what a member may do in one channel.
type Permission int64

const (
	PermViewChannel   Permission = 1 << 0
	PermSendMessages  Permission = 1 << 1
	PermAttachFiles   Permission = 1 << 2
	PermMentionOthers Permission = 1 << 3
	PermAddMembers    Permission = 1 << 4
	PermRemoveMembers Permission = 1 << 5
	PermLeave         Permission = 1 << 6

	// Every member of any channel can read and post.
	PermParticipate = PermViewChannel | PermSendMessages | PermAttachFiles | PermMentionOthers
)

// Has returns true if p contains all bits in perm.
func (p Permission) Has(perm Permission) bool { return p&perm == perm }

// Add returns p with the bits from perm set.
func (p Permission) Add(perm Permission) Permission { return p | perm }

// Remove returns p with the bits from perm cleared.
func (p Permission) Remove(perm Permission) Permission { return p &^ perm }

// ForChannel computes what a member of ch may do. Direct channels have a
// fixed membership. In group channels anyone may invite, the creator
// removes others and everyone else may leave.
func ForChannel(ch *models.Channel, userID int64) Permission {
	p := PermParticipate
	if ch.Kind == models.ChannelKindDirect {
		return p
	}
	p = p.Add(PermAddMembers)
	if userID == ch.CreatedBy {
		return p.Add(PermRemoveMembers)
	}
	return p.Add(PermLeave)
}

var permNames = []struct {
	bit  Permission
	name string
}{
	{PermViewChannel, "VIEW_CHANNEL"},
	{PermSendMessages, "SEND_MESSAGES"},
	{PermAttachFiles, "ATTACH_FILES"},
	{PermMentionOthers, "MENTION_OTHERS"},
	{PermAddMembers, "ADD_MEMBERS"},
	{PermRemoveMembers, "REMOVE_MEMBERS"},
	{PermLeave, "LEAVE"},
}

// String lists the set permission names in bit order, separated by " | ".
func (p Permission) String() string {
	if p == 0 {
		return "NONE"
	}

	var names []string
	for _, pn := range permNames {
		if p.Has(pn.bit) {
			names = append(names, pn.name)
		}
	}

	if len(names) == 0 {
		return "UNKNOWN"
	}
	return strings.Join(names, " | ")
}
