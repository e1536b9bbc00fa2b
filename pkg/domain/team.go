package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// TeamStatus represents the state of a team.
type TeamStatus string

const (
	TeamStatusActive   TeamStatus = "active"
	TeamStatusArchived TeamStatus = "archived"
)

// Valid reports whether s is a known team status.
func (s TeamStatus) Valid() bool {
	return s == TeamStatusActive || s == TeamStatusArchived
}

// Member is one entry in a team's ordered member list.
type Member struct {
	UserID   uuid.UUID `json:"user_id"`
	Role     TeamRole  `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// Team is the membership aggregate. Version increases on every write and
// guards concurrent mutations.
type Team struct {
	ID          uuid.UUID
	Name        string
	Description string
	CreatedBy   uuid.UUID
	Members     []Member
	Status      TeamStatus
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Member returns the membership entry for userID, if present.
func (t *Team) Member(userID uuid.UUID) (Member, bool) {
	i := t.memberIndex(userID)
	if i < 0 {
		return Member{}, false
	}
	return t.Members[i], true
}

// HasMember reports whether userID appears in Members.
func (t *Team) HasMember(userID uuid.UUID) bool {
	return t.memberIndex(userID) >= 0
}

// IsLead reports whether userID holds the in-team LEAD role.
func (t *Team) IsLead(userID uuid.UUID) bool {
	m, ok := t.Member(userID)
	return ok && m.Role == TeamRoleLead
}

// Leads returns the user ids holding the in-team LEAD role, in member order.
func (t *Team) Leads() []uuid.UUID {
	var ids []uuid.UUID
	for _, m := range t.Members {
		if m.Role == TeamRoleLead {
			ids = append(ids, m.UserID)
		}
	}
	return ids
}

// MemberIDs returns every member's user id, in member order.
func (t *Team) MemberIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(t.Members))
	for i, m := range t.Members {
		ids[i] = m.UserID
	}
	return ids
}

// AddMember appends a member. It reports false and leaves the team unchanged
// when the user is already present.
func (t *Team) AddMember(userID uuid.UUID, role TeamRole, at time.Time) bool {
	if t.HasMember(userID) {
		return false
	}
	t.Members = append(t.Members, Member{UserID: userID, Role: role, JoinedAt: at})
	return true
}

// RemoveMember filters userID out of Members and reports whether anything changed.
func (t *Team) RemoveMember(userID uuid.UUID) bool {
	before := len(t.Members)
	t.Members = slices.DeleteFunc(t.Members, func(m Member) bool {
		return m.UserID == userID
	})
	return len(t.Members) != before
}

// TransferLeadership demotes every in-team LEAD, promotes or inserts newLead
// as LEAD and makes newLead the creator. It reports whether the team changed
// and whether newLead was newly inserted.
func (t *Team) TransferLeadership(newLead uuid.UUID, at time.Time) (changed, inserted bool) {
	for i := range t.Members {
		m := &t.Members[i]
		switch {
		case m.UserID == newLead:
			if m.Role != TeamRoleLead {
				m.Role = TeamRoleLead
				changed = true
			}
		case m.Role == TeamRoleLead:
			m.Role = TeamRoleMember
			changed = true
		}
	}
	if !t.HasMember(newLead) {
		t.Members = append(t.Members, Member{UserID: newLead, Role: TeamRoleLead, JoinedAt: at})
		changed, inserted = true, true
	}
	if t.CreatedBy != newLead {
		t.CreatedBy = newLead
		changed = true
	}
	return changed, inserted
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (t *Team) Clone() *Team {
	c := *t
	c.Members = slices.Clone(t.Members)
	return &c
}

func (t *Team) memberIndex(userID uuid.UUID) int {
	return slices.IndexFunc(t.Members, func(m Member) bool {
		return m.UserID == userID
	})
}
