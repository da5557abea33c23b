package models

import "slices"

// Reaction is one emoji on a message together with everyone who applied it.
type Reaction struct {
	Emoji   string `json:"emoji"`
	UserIDs IDs    `json:"user_ids"`
}

// ToggleReaction adds userID to the emoji's reaction, or removes it when already
// present. Reactions left without users are dropped.
func ToggleReaction(reactions []Reaction, emoji string, userID int64) []Reaction {
	out := make([]Reaction, 0, len(reactions)+1)
	found := false
	for _, r := range reactions {
		if r.Emoji != emoji {
			out = append(out, r)
			continue
		}
		found = true
		users := make(IDs, 0, len(r.UserIDs)+1)
		had := false
		for _, id := range r.UserIDs {
			if id == userID {
				had = true
				continue
			}
			users = append(users, id)
		}
		if !had {
			users = append(users, userID)
		}
		if len(users) > 0 {
			out = append(out, Reaction{Emoji: emoji, UserIDs: users})
		}
	}
	if !found {
		out = append(out, Reaction{Emoji: emoji, UserIDs: IDs{userID}})
	}
	return out
}

// HasReacted reports whether userID applied emoji.
func HasReacted(reactions []Reaction, emoji string, userID int64) bool {
	for _, r := range reactions {
		if r.Emoji == emoji {
			return slices.Contains(r.UserIDs, userID)
		}
	}
	return false
}

// SetReaction makes userID's emoji reaction present or absent. The second
// result is false when the reaction was already in that state, in which case
// reactions is returned as is.
func SetReaction(reactions []Reaction, emoji string, userID int64, present bool) ([]Reaction, bool) {
	if HasReacted(reactions, emoji, userID) == present {
		return reactions, false
	}
	return ToggleReaction(reactions, emoji, userID), true
}
