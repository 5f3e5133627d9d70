package paint

import "fmt"

// ItemType identifies the kind of drawing an item holds.
type ItemType uint8

const (
	ItemLine     ItemType = 0x01 // Straight line segment
	ItemFreeLine ItemType = 0x02 // Free-hand pen stroke
	ItemText     ItemType = 0x03 // Text label
	ItemFile     ItemType = 0x04 // Dropped file icon
	ItemImage    ItemType = 0x05 // Pasted image
)

// String returns the string representation of the item type.
func (t ItemType) String() string {
	switch t {
	case ItemLine:
		return "Line"
	case ItemFreeLine:
		return "FreeLine"
	case ItemText:
		return "Text"
	case ItemFile:
		return "File"
	case ItemImage:
		return "Image"
	default:
		return "Unknown"
	}
}

// ItemKey identifies an item across all participants. IDs are allocated by
// the owner, so the pair is unique even though IDs alone are not.
type ItemKey struct {
	Owner string
	ID    int64
}

// String returns "owner/id".
func (k ItemKey) String() string {
	return fmt.Sprintf("%s/%d", k.Owner, k.ID)
}

// Item is a drawing placed on the canvas.
// Data is the renderer's payload (points, text, file bytes) and is opaque
// to the synchronization core.
type Item struct {
	Key  ItemKey
	Type ItemType
	X    float64
	Y    float64
	Data []byte
}

// Clone returns a deep copy of the item.
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	c := *it
	if it.Data != nil {
		c.Data = append([]byte(nil), it.Data...)
	}
	return &c
}

// Color is an RGBA background color.
type Color struct {
	R, G, B, A uint8
}

// White is the default canvas background. It is never exported.
var White = Color{R: 255, G: 255, B: 255, A: 255}

// Image is a background image. Format is a hint such as "png".
type Image struct {
	Format string
	Data   []byte
}
