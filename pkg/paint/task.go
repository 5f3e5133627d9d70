package paint

// TaskKind selects the variant of a Task.
type TaskKind uint8

const (
	TaskCreate TaskKind = 0x01 // Place a new item
	TaskMove   TaskKind = 0x02 // Move an item
	TaskUpdate TaskKind = 0x03 // Replace an item's payload
	TaskRemove TaskKind = 0x04 // Hide an item
	TaskClear  TaskKind = 0x05 // Hide a set of items at once
)

// String returns the string representation of the task kind.
func (k TaskKind) String() string {
	switch k {
	case TaskCreate:
		return "Create"
	case TaskMove:
		return "Move"
	case TaskUpdate:
		return "Update"
	case TaskRemove:
		return "Remove"
	case TaskClear:
		return "Clear"
	default:
		return "Unknown"
	}
}

// Task is a reversible change to the canvas. Only the fields belonging to
// Kind are meaningful; each variant carries enough to undo itself.
//
//	Create: Item
//	Move:   Key, FromX, FromY, ToX, ToY
//	Update: Key, Prev, Next
//	Remove: Key
//	Clear:  Keys
type Task struct {
	Kind TaskKind

	Item *Item

	Key ItemKey

	FromX, FromY float64
	ToX, ToY     float64

	Prev []byte
	Next []byte

	Keys []ItemKey
}

// NewCreateTask returns a task that places item on the canvas.
func NewCreateTask(item *Item) *Task {
	return &Task{Kind: TaskCreate, Item: item.Clone(), Key: item.Key}
}

// NewMoveTask returns a task that moves an item from one position to another.
func NewMoveTask(key ItemKey, fromX, fromY, toX, toY float64) *Task {
	return &Task{Kind: TaskMove, Key: key, FromX: fromX, FromY: fromY, ToX: toX, ToY: toY}
}

// NewUpdateTask returns a task that replaces an item's payload.
func NewUpdateTask(key ItemKey, prev, next []byte) *Task {
	return &Task{Kind: TaskUpdate, Key: key, Prev: prev, Next: next}
}

// NewRemoveTask returns a task that hides an item.
func NewRemoveTask(key ItemKey) *Task {
	return &Task{Kind: TaskRemove, Key: key}
}

// NewClearTask returns a task that hides every listed item.
func NewClearTask(keys []ItemKey) *Task {
	return &Task{Kind: TaskClear, Keys: append([]ItemKey(nil), keys...)}
}
