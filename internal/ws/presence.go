package ws

import (
	"cmp"
	"slices"
	"time"

	"github.com/samber/lo"

	"collab-service/internal/models"
)

// Presence is one user in a channel, however many connections they hold.
type Presence struct {
	UserID      string    `json:"userId"`
	Username    string    `json:"username"`
	JoinedAt    time.Time `json:"joinedAt"`
	Connections int       `json:"connections"`
}

// projectPresence collapses members by user id, keeping the earliest join,
// and makes sure self is listed. The result is ordered by join time.
func projectPresence(members []member, self *models.UserRef, now time.Time) []Presence {
	byUser := lo.GroupBy(members, func(m member) string { return m.userID })
	out := lo.MapToSlice(byUser, func(userID string, conns []member) Presence {
		first := lo.MinBy(conns, func(a, b member) bool { return a.joinedAt.Before(b.joinedAt) })
		return Presence{
			UserID:      userID,
			Username:    first.username,
			JoinedAt:    first.joinedAt,
			Connections: len(conns),
		}
	})

	if self != nil {
		if _, ok := byUser[self.ID]; !ok {
			out = append(out, Presence{
				UserID:      self.ID,
				Username:    self.Username,
				JoinedAt:    now,
				Connections: 1,
			})
		}
	}

	slices.SortFunc(out, func(a, b Presence) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	return out
}
