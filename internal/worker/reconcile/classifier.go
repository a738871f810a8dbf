package reconcile

import (
	"time"

	"github.com/joinwarden/joinwarden/internal/database/types"
	"github.com/joinwarden/joinwarden/internal/database/types/enum"
)

const (
	// NotifyAfter is how long a join request may sit unverified before the
	// member is sent a reminder.
	NotifyAfter = 20 * time.Minute

	// ResolveAfter is how long a reminded member gets before their request
	// is resolved by ban or removal.
	ResolveAfter = 6 * time.Hour

	// RetentionWindow is how long non-audit event records are kept before
	// the pruning sweep removes them.
	RetentionWindow = 30 * 24 * time.Hour
)

// Classification holds the action sets derived from one log snapshot.
// A member appears in at most one of the three action sets per run.
type Classification struct {
	// ToNotify members have an unreminded join request past NotifyAfter.
	ToNotify []types.Member
	// ToBan members were reminded, ran out the ResolveAfter window, and
	// belong to a chat whose policy bans non-joiners.
	ToBan []types.Member
	// ToDenyAndRemove members ran out the window in chats without the
	// ban policy, or already carry a ban marker.
	ToDenyAndRemove []types.Member
	// Banned is the dedupe set of members with a durable ban marker.
	Banned map[types.Member]struct{}
	// Usernames maps members to display names for messages and reports.
	Usernames map[types.Member]string
}

// Counts summarizes a classification for dry runs and status checks.
type Counts struct {
	ToNotify        int `json:"toNotify"`
	ToBan           int `json:"toBan"`
	ToDenyAndRemove int `json:"toDenyAndRemove"`
}

// Counts returns the per-set sizes of the classification.
func (c *Classification) Counts() Counts {
	return Counts{
		ToNotify:        len(c.ToNotify),
		ToBan:           len(c.ToBan),
		ToDenyAndRemove: len(c.ToDenyAndRemove),
	}
}

// Classify derives the action sets from a log snapshot at the given time.
// It is a pure function: the same snapshot and time always yield the same
// sets, and nothing is mutated.
//
// Ban markers are collected in a first pass so the dedupe does not depend
// on record order within the snapshot. Thresholds are inclusive:
// now - at >= threshold.
func Classify(events []*types.Event, banPolicy map[int64]struct{}, now time.Time) *Classification {
	c := &Classification{
		Banned:    make(map[types.Member]struct{}),
		Usernames: make(map[types.Member]string),
	}

	for _, event := range events {
		if !eligible(event) {
			continue
		}

		if event.Operation == enum.OperationIsBanned {
			c.Banned[event.Member()] = struct{}{}
		}
	}

	seen := make(map[types.Member]struct{})

	for _, event := range events {
		if !eligible(event) || event.Operation != enum.OperationWantsToJoin {
			continue
		}

		member := event.Member()
		if _, dup := seen[member]; dup {
			continue
		}

		if event.Username != "" {
			c.Usernames[member] = event.Username
		}

		age := now.Sub(event.At)

		switch {
		case event.Notified == nil && age >= NotifyAfter:
			// A member with a ban marker but an unreminded join request
			// still gets the reminder; the dedupe set only gates the ban
			// branch. Inherited behavior, kept as-is.
			c.ToNotify = append(c.ToNotify, member)
			seen[member] = struct{}{}

		case event.Notified != nil && age >= ResolveAfter:
			_, bansHere := banPolicy[event.ChatID]
			_, alreadyBanned := c.Banned[member]

			if bansHere && !alreadyBanned {
				c.ToBan = append(c.ToBan, member)
			} else {
				c.ToDenyAndRemove = append(c.ToDenyAndRemove, member)
			}

			seen[member] = struct{}{}
		}
	}

	return c
}

// eligible reports whether a record carries the fields classification needs.
func eligible(event *types.Event) bool {
	return event.Operation != "" && event.UserID != 0 && event.ChatID != 0 && !event.At.IsZero()
}
