package domain

// Role governs whether a collaborator may mutate a board.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// CanEdit reports whether the role permits task, label and order mutations.
func (r Role) CanEdit() bool {
	return r == RoleOwner || r == RoleEditor
}

// Collaborator is a user granted access to a board.
type Collaborator struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
	Role   Role   `json:"role"`
}

// Label is a board-scoped tag. Name uniqueness within a board is recommended
// but not enforced.
type Label struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Board is a collaborative container of tasks.
type Board struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description,omitempty"`
	OwnerID       string         `json:"ownerId"`
	Collaborators []Collaborator `json:"collaborators,omitempty"`
	Labels        []Label        `json:"labels,omitempty"`
	// ShareToken, when set, allows join-by-link.
	ShareToken string `json:"shareToken,omitempty"`
}

// RoleOf resolves the role a user holds on the board. Users with no grant get
// an empty role, which fails CanEdit and is distinct from RoleViewer.
func (b Board) RoleOf(userID string) Role {
	if userID == "" {
		return ""
	}
	if userID == b.OwnerID {
		return RoleOwner
	}
	for _, c := range b.Collaborators {
		if c.UserID == userID {
			return c.Role
		}
	}
	return ""
}

// LabelByID returns the board label with the given identifier.
func (b Board) LabelByID(id string) (Label, bool) {
	for _, l := range b.Labels {
		if l.ID == id {
			return l, true
		}
	}
	return Label{}, false
}

// BoardPatch is a partial board update. Labels, when present, replace the
// whole label set.
type BoardPatch struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Labels      *[]Label `json:"labels,omitempty"`
}
