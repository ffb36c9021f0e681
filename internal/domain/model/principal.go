package model

// Role of an authenticated caller.
type Role string

// Known roles.
const (
	RoleAdmin  Role = "admin"
	RoleJudge  Role = "judge"
	RoleViewer Role = "viewer"
)

// Principal is the authenticated caller as supplied by the identity layer.
type Principal struct {
	UserID       int64
	Role         Role
	Competitions []int64 // competitions the judge is assigned to
}

// IsAdmin reports whether p may act on any competition.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// AssignedTo reports whether p is a judge assigned to the competition.
func (p Principal) AssignedTo(competitionID int64) bool {
	if p.Role != RoleJudge {
		return false
	}
	for _, id := range p.Competitions {
		if id == competitionID {
			return true
		}
	}
	return false
}

// CanJudge reports whether p may write scores in the competition.
func (p Principal) CanJudge(competitionID int64) bool {
	return p.IsAdmin() || p.AssignedTo(competitionID)
}
