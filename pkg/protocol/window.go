package protocol

// ResizeMainWindow shares the main window size.
type ResizeMainWindow struct {
	Width  int
	Height int
}

func (*ResizeMainWindow) Code() Code { return CodeResizeMainWindow }

func (m *ResizeMainWindow) EncodeTo(e *Encoder) {
	e.WriteSvarint(int64(m.Width))
	e.WriteSvarint(int64(m.Height))
}

// DecodeResizeMainWindow decodes a ResizeMainWindow body.
func DecodeResizeMainWindow(body []byte) (*ResizeMainWindow, error) {
	w, h, err := decodeSize(body)
	if err != nil {
		return nil, err
	}
	return &ResizeMainWindow{Width: w, Height: h}, nil
}

// ResizeCanvas shares the canvas size.
type ResizeCanvas struct {
	Width  int
	Height int
}

func (*ResizeCanvas) Code() Code { return CodeResizeCanvas }

func (m *ResizeCanvas) EncodeTo(e *Encoder) {
	e.WriteSvarint(int64(m.Width))
	e.WriteSvarint(int64(m.Height))
}

// DecodeResizeCanvas decodes a ResizeCanvas body.
func DecodeResizeCanvas(body []byte) (*ResizeCanvas, error) {
	w, h, err := decodeSize(body)
	if err != nil {
		return nil, err
	}
	return &ResizeCanvas{Width: w, Height: h}, nil
}

func decodeSize(body []byte) (int, int, error) {
	d := NewDecoder(body)
	w, err := d.ReadInt()
	if err != nil {
		return 0, 0, malformed(err)
	}
	h, err := d.ReadInt()
	if err != nil {
		return 0, 0, malformed(err)
	}
	if !d.EOF() {
		return 0, 0, malformed(ErrTrailingBytes)
	}
	return w, h, nil
}

// ResizeWindowSplitter shares the splitter pane sizes.
type ResizeWindowSplitter struct {
	Sizes []int
}

func (*ResizeWindowSplitter) Code() Code { return CodeResizeWindowSplitter }

func (m *ResizeWindowSplitter) EncodeTo(e *Encoder) { e.WriteInts(m.Sizes) }

// DecodeResizeWindowSplitter decodes a ResizeWindowSplitter body.
func DecodeResizeWindowSplitter(body []byte) (*ResizeWindowSplitter, error) {
	d := NewDecoder(body)
	sizes, err := d.ReadInts()
	if err != nil {
		return nil, malformed(err)
	}
	return done(&ResizeWindowSplitter{Sizes: sizes}, d)
}

// ChangeCanvasScroll shares the canvas scrollbar positions.
type ChangeCanvasScroll struct {
	Horizontal int
	Vertical   int
}

func (*ChangeCanvasScroll) Code() Code { return CodeChangeCanvasScroll }

func (m *ChangeCanvasScroll) EncodeTo(e *Encoder) {
	e.WriteInt16(int16(m.Horizontal))
	e.WriteInt16(int16(m.Vertical))
}

// DecodeChangeCanvasScroll decodes a ChangeCanvasScroll body.
func DecodeChangeCanvasScroll(body []byte) (*ChangeCanvasScroll, error) {
	d := NewDecoder(body)
	h, err := d.ReadInt16()
	if err != nil {
		return nil, malformed(err)
	}
	v, err := d.ReadInt16()
	if err != nil {
		return nil, malformed(err)
	}
	return done(&ChangeCanvasScroll{Horizontal: int(h), Vertical: int(v)}, d)
}
