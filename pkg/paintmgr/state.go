package paintmgr

import (
	"context"

	"github.com/kingctan/sharedpainter/internal/errors"
	"github.com/kingctan/sharedpainter/pkg/paint"
	"github.com/kingctan/sharedpainter/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// canvasState is the shared window and background state.
type canvasState struct {
	windowW, windowH int
	canvasW, canvasH int
	splitter         []int
	scrollH, scrollV int

	gridSize int
	bgColor  paint.Color
	bgImage  *paint.Image
}

func newCanvasState() canvasState {
	c := canvasState{}
	c.reset()
	return c
}

func (c *canvasState) reset() {
	*c = canvasState{scrollH: -1, scrollV: -1}
	c.resetBackground()
}

func (c *canvasState) resetBackground() {
	c.gridSize = 0
	c.bgColor = paint.White
	c.bgImage = nil
}

// Canvas is a snapshot of the shared window and background state.
type Canvas struct {
	WindowWidth, WindowHeight int
	CanvasWidth, CanvasHeight int
	Splitter                  []int
	ScrollH, ScrollV          int
	GridSize                  int
	BackgroundColor           paint.Color
	BackgroundImage           *paint.Image
}

func (m *Manager) withCanvas(fn func(c *canvasState)) {
	m.mu.Lock()
	fn(&m.canvas)
	m.mu.Unlock()
}

// Canvas returns the current window and background state.
func (m *Manager) Canvas() Canvas {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.canvas
	out := Canvas{
		WindowWidth:     c.windowW,
		WindowHeight:    c.windowH,
		CanvasWidth:     c.canvasW,
		CanvasHeight:    c.canvasH,
		Splitter:        append([]int(nil), c.splitter...),
		ScrollH:         c.scrollH,
		ScrollV:         c.scrollV,
		GridSize:        c.gridSize,
		BackgroundColor: c.bgColor,
	}
	if c.bgImage != nil {
		img := *c.bgImage
		out.BackgroundImage = &img
	}
	return out
}

// statePackets renders the full state in export order, optionally led by
// VERSION_INFO.
func (m *Manager) statePackets(version bool) []*protocol.Packet {
	c := m.Canvas()
	var packets []*protocol.Packet
	if version {
		packets = append(packets, protocol.Make(protocol.NewVersionInfo(m.cfg.AppVersion)))
	}
	packets = append(packets,
		m.packet(&protocol.ResizeMainWindow{Width: c.WindowWidth, Height: c.WindowHeight}),
		m.packet(&protocol.ResizeCanvas{Width: c.CanvasWidth, Height: c.CanvasHeight}),
		m.packet(&protocol.ResizeWindowSplitter{Sizes: c.Splitter}),
		m.packet(&protocol.ChangeCanvasScroll{Horizontal: c.ScrollH, Vertical: c.ScrollV}),
	)
	if c.GridSize > 0 {
		packets = append(packets, m.packet(&protocol.SetBackgroundGrid{Size: c.GridSize}))
	}
	if c.BackgroundColor != paint.White {
		packets = append(packets, m.packet(&protocol.SetBackgroundColor{Color: c.BackgroundColor}))
	}
	if c.BackgroundImage != nil {
		packets = append(packets, m.packet(&protocol.SetBackgroundImage{Image: *c.BackgroundImage}))
	}

	history := m.users.History()
	for _, u := range history {
		u.SessionID = ""
		u.Self = false
	}
	packets = append(packets, m.packet(&protocol.HistoryUserList{Users: history}))

	for _, it := range m.log.Scene().Items() {
		packets = append(packets, m.packet(&protocol.CreateItem{Item: it}))
	}
	for _, t := range m.log.Tasks() {
		packets = append(packets, m.packet(&protocol.TaskExecute{Task: t}))
	}
	return packets
}

// SerializeState renders the full state as a blob: the export and
// autosave format.
func (m *Manager) SerializeState(ctx context.Context) ([]byte, error) {
	_, span := m.tracer.Start(ctx, "paintmgr.serialize_state")
	defer span.End()

	var blob []byte
	if err := m.do(ctx, func() {
		blob = protocol.Concat(m.statePackets(true)...)
	}); err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("state.bytes", len(blob)))
	return blob, nil
}

// DeserializeState applies an exported blob and broadcasts it to the
// channel. A blob without a compatible leading VERSION_INFO is rejected
// without applying anything.
func (m *Manager) DeserializeState(ctx context.Context, blob []byte) error {
	_, span := m.tracer.Start(ctx, "paintmgr.deserialize_state")
	defer span.End()

	_, packets, err := protocol.ParseBlob(blob)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "incompatible blob")
		return errors.New("E201").Wrap(err)
	}
	span.SetAttributes(attribute.Int("state.packets", len(packets)))

	return m.do(ctx, func() {
		for _, p := range packets {
			m.dispatch(nil, p)
		}
		if len(packets) > 0 {
			restamped := make([]*protocol.Packet, len(packets))
			for i, p := range packets {
				restamped[i] = protocol.NewPacketFrom(p.Code, m.SelfID(), p.Body)
			}
			m.broadcast(nil, restamped...)
		}
		m.logger.Info("state imported", "packets", len(packets))
	})
}
