package messagestore

import "fmt"

// ChangeType says how the item at Change.Index was affected.
type ChangeType int

const (
	ItemAdded ChangeType = iota + 1
	ItemUpdated
)

func (t ChangeType) String() string {
	switch t {
	case ItemAdded:
		return "item_added"
	case ItemUpdated:
		return "item_updated"
	default:
		return "unknown"
	}
}

// Change is the minimal delta between two consecutive notifications.
type Change struct {
	Type  ChangeType
	Index int
}

func Added(index int) Change   { return Change{Type: ItemAdded, Index: index} }
func Updated(index int) Change { return Change{Type: ItemUpdated, Index: index} }

func (c Change) String() string {
	return fmt.Sprintf("%s(%d)", c.Type, c.Index)
}
