package pos

import "branchpos/internal/database/models"

// ActorContext identifies the authenticated operator a core call runs on
// behalf of. It is always passed explicitly; nothing in this package reads
// ambient request state.
type ActorContext struct {
	ID       int64
	Name     string
	Role     models.Role
	BranchId int64
}

func (a ActorContext) SameBranch(branchId int64) bool {
	return a.Role == models.RoleSuperUser || a.BranchId == branchId
}
