package protocol

import "github.com/kingctan/sharedpainter/pkg/paint"

// EncodeItemTo encodes a paint item.
func EncodeItemTo(e *Encoder, it *paint.Item) {
	EncodeItemKeyTo(e, it.Key)
	e.WriteByte(byte(it.Type))
	e.WritePoint(it.X, it.Y)
	e.WriteLenBytes(it.Data)
}

// DecodeItemFrom decodes a paint item.
func DecodeItemFrom(d *Decoder) (*paint.Item, error) {
	key, err := DecodeItemKeyFrom(d)
	if err != nil {
		return nil, err
	}
	it := &paint.Item{Key: key}
	t, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	it.Type = paint.ItemType(t)
	if it.X, it.Y, err = d.ReadPoint(); err != nil {
		return nil, err
	}
	if it.Data, err = d.ReadLenBytes(); err != nil {
		return nil, err
	}
	return it, nil
}

// EncodeItemKeyTo encodes an item key.
func EncodeItemKeyTo(e *Encoder, k paint.ItemKey) {
	e.WriteString(k.Owner)
	e.WriteSvarint(k.ID)
}

// DecodeItemKeyFrom decodes an item key.
func DecodeItemKeyFrom(d *Decoder) (paint.ItemKey, error) {
	var k paint.ItemKey
	var err error
	if k.Owner, err = d.ReadString(); err != nil {
		return k, err
	}
	if k.ID, err = d.ReadSvarint(); err != nil {
		return k, err
	}
	return k, nil
}

// ClearScreen clears every item from the canvas.
type ClearScreen struct{}

func (*ClearScreen) Code() Code        { return CodeClearScreen }
func (*ClearScreen) EncodeTo(*Encoder) {}

// ClearBackground resets the background image, color and grid.
type ClearBackground struct{}

func (*ClearBackground) Code() Code        { return CodeClearBackground }
func (*ClearBackground) EncodeTo(*Encoder) {}

// SetBackgroundImage sets the canvas background image.
type SetBackgroundImage struct {
	Image paint.Image
}

func (*SetBackgroundImage) Code() Code { return CodeSetBackgroundImg }

func (m *SetBackgroundImage) EncodeTo(e *Encoder) {
	e.WriteString(m.Image.Format)
	e.WriteLenBytes(m.Image.Data)
}

// DecodeSetBackgroundImage decodes a SetBackgroundImage body.
func DecodeSetBackgroundImage(body []byte) (*SetBackgroundImage, error) {
	d := NewDecoder(body)
	m := &SetBackgroundImage{}
	var err error
	if m.Image.Format, err = d.ReadString(); err != nil {
		return nil, malformed(err)
	}
	if m.Image.Data, err = d.ReadLenBytes(); err != nil {
		return nil, malformed(err)
	}
	return done(m, d)
}

// SetBackgroundGrid sets the background grid line spacing; 0 disables it.
type SetBackgroundGrid struct {
	Size int
}

func (*SetBackgroundGrid) Code() Code { return CodeSetBackgroundGrid }

func (m *SetBackgroundGrid) EncodeTo(e *Encoder) { e.WriteSvarint(int64(m.Size)) }

// DecodeSetBackgroundGrid decodes a SetBackgroundGrid body.
func DecodeSetBackgroundGrid(body []byte) (*SetBackgroundGrid, error) {
	d := NewDecoder(body)
	size, err := d.ReadInt()
	if err != nil {
		return nil, malformed(err)
	}
	return done(&SetBackgroundGrid{Size: size}, d)
}

// SetBackgroundColor sets the canvas background color.
type SetBackgroundColor struct {
	Color paint.Color
}

func (*SetBackgroundColor) Code() Code { return CodeSetBackgroundClr }

func (m *SetBackgroundColor) EncodeTo(e *Encoder) { e.WriteColor(m.Color) }

// DecodeSetBackgroundColor decodes a SetBackgroundColor body.
func DecodeSetBackgroundColor(body []byte) (*SetBackgroundColor, error) {
	d := NewDecoder(body)
	c, err := d.ReadColor()
	if err != nil {
		return nil, malformed(err)
	}
	return done(&SetBackgroundColor{Color: c}, d)
}

// CreateItem registers an item in the receiver's item set.
type CreateItem struct {
	Item *paint.Item
}

func (*CreateItem) Code() Code { return CodeCreateItem }

func (m *CreateItem) EncodeTo(e *Encoder) { EncodeItemTo(e, m.Item) }

// DecodeCreateItem decodes a CreateItem body.
func DecodeCreateItem(body []byte) (*CreateItem, error) {
	d := NewDecoder(body)
	it, err := DecodeItemFrom(d)
	if err != nil {
		return nil, malformed(err)
	}
	return done(&CreateItem{Item: it}, d)
}
