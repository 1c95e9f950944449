package task

import "fmt"

type Relation int

const (
	RelationCreator Relation = iota
	RelationCreatorOrAssignee
)

func (r Relation) String() string {
	switch r {
	case RelationCreator:
		return "creator"
	case RelationCreatorOrAssignee:
		return "creator or assignee"
	}
	return fmt.Sprintf("relation(%d)", int(r))
}

// Authorize checks that userID stands in the required relation to t.
// An unresolved assignee (no user id) never satisfies the assignee side.
func Authorize(t *Task, userID string, required Relation) error {
	if t == nil {
		return ErrNotFound
	}
	if userID != "" && t.Creator.ID == userID {
		return nil
	}
	if required == RelationCreatorOrAssignee && isAssignee(t, userID) {
		return nil
	}
	return fmt.Errorf("%w: only the task %s can do that", ErrForbidden, required)
}

func isAssignee(t *Task, userID string) bool {
	return userID != "" && t.Assignee != nil && t.Assignee.ID == userID
}

// Visible reports whether userID may see t at all.
func Visible(t *Task, userID string) bool {
	return Authorize(t, userID, RelationCreatorOrAssignee) == nil
}
