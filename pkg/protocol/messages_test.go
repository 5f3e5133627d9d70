package protocol

import (
	"errors"
	"reflect"
	"testing"

	"github.com/kingctan/sharedpainter/pkg/paint"
)

func TestResJoinUsers(t *testing.T) {
	in := &ResJoin{
		Channel:   "room",
		FirstUser: false,
		Users: []*paint.User{
			{ID: "a", NickName: "Ann", Channel: "room", LocalIP: "10.0.0.2", ListenTCPPort: 4001, ScreenStreaming: true},
			{ID: "b", NickName: "Bo", Channel: "room", ViewIP: "1.2.3.4", ListenUDPPort: 5001, StreamListenPort: 6000, ScreenRecording: true, StreamReceiving: true},
		},
		SuperPeerID: "a",
	}

	got, err := DecodeResJoin(Make(in).Body)
	if err != nil {
		t.Fatalf("DecodeResJoin() error = %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Errorf("DecodeResJoin() = %+v, want %+v", got, in)
	}
}

func TestUserRequiresID(t *testing.T) {
	body := Make(&JoinToServer{User: &paint.User{NickName: "anon"}}).Body
	if _, err := DecodeJoinToServer(body); !errors.Is(err, ErrMalformed) {
		t.Errorf("DecodeJoinToServer() error = %v, want ErrMalformed", err)
	}
}

func TestTaskExecuteKinds(t *testing.T) {
	key := paint.ItemKey{Owner: "a", ID: 7}
	tests := []struct {
		name string
		task *paint.Task
	}{
		{"create", paint.NewCreateTask(&paint.Item{Key: key, Type: paint.ItemFreeLine, X: 1.5, Y: -2, Data: []byte{1, 2, 3}})},
		{"move", paint.NewMoveTask(key, 0, 0, 10.25, 20)},
		{"update", paint.NewUpdateTask(key, []byte("old"), []byte("new"))},
		{"remove", paint.NewRemoveTask(key)},
		{"clear", paint.NewClearTask([]paint.ItemKey{key, {Owner: "b", ID: 1}})},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeTaskExecute(Make(&TaskExecute{Task: tc.task}).Body)
			if err != nil {
				t.Fatalf("DecodeTaskExecute() error = %v", err)
			}
			if !reflect.DeepEqual(got.Task, tc.task) {
				t.Errorf("task = %+v, want %+v", got.Task, tc.task)
			}
		})
	}
}

func TestTaskExecuteUnknownKind(t *testing.T) {
	_, err := DecodeTaskExecute([]byte{0x7F})
	if !errors.Is(err, ErrMalformed) || !errors.Is(err, ErrUnknownTaskKind) {
		t.Errorf("DecodeTaskExecute() error = %v", err)
	}
}

func TestCreateItem(t *testing.T) {
	it := &paint.Item{Key: paint.ItemKey{Owner: "z", ID: -3}, Type: paint.ItemText, X: 3, Y: 4, Data: []byte("label")}
	got, err := DecodeCreateItem(Make(&CreateItem{Item: it}).Body)
	if err != nil {
		t.Fatalf("DecodeCreateItem() error = %v", err)
	}
	if !reflect.DeepEqual(got.Item, it) {
		t.Errorf("Item = %+v, want %+v", got.Item, it)
	}
}

func TestBackgroundMessages(t *testing.T) {
	c := paint.Color{R: 10, G: 20, B: 30, A: 255}
	gotColor, err := DecodeSetBackgroundColor(Make(&SetBackgroundColor{Color: c}).Body)
	if err != nil || gotColor.Color != c {
		t.Errorf("DecodeSetBackgroundColor() = %+v, %v", gotColor, err)
	}

	img := paint.Image{Format: "png", Data: []byte{0x89, 'P', 'N', 'G'}}
	gotImg, err := DecodeSetBackgroundImage(Make(&SetBackgroundImage{Image: img}).Body)
	if err != nil || !reflect.DeepEqual(gotImg.Image, img) {
		t.Errorf("DecodeSetBackgroundImage() = %+v, %v", gotImg, err)
	}
}

func TestWindowMessages(t *testing.T) {
	w, err := DecodeResizeMainWindow(Make(&ResizeMainWindow{Width: 1024, Height: 768}).Body)
	if err != nil || w.Width != 1024 || w.Height != 768 {
		t.Errorf("DecodeResizeMainWindow() = %+v, %v", w, err)
	}

	s, err := DecodeChangeCanvasScroll(Make(&ChangeCanvasScroll{Horizontal: -1, Vertical: 300}).Body)
	if err != nil || s.Horizontal != -1 || s.Vertical != 300 {
		t.Errorf("DecodeChangeCanvasScroll() = %+v, %v", s, err)
	}

	sp, err := DecodeResizeWindowSplitter(Make(&ResizeWindowSplitter{Sizes: []int{200, 600}}).Body)
	if err != nil || !reflect.DeepEqual(sp.Sizes, []int{200, 600}) {
		t.Errorf("DecodeResizeWindowSplitter() = %+v, %v", sp, err)
	}
}

func TestBroadcastMessages(t *testing.T) {
	probe := &ProbeServer{Channel: "room", Addr: "192.168.1.5", Port: 5001}
	gotProbe, err := DecodeProbeServer(Make(probe).Body)
	if err != nil || *gotProbe != *probe {
		t.Errorf("DecodeProbeServer() = %+v, %v", gotProbe, err)
	}

	info := &ServerInfo{Channel: "room", Addr: "192.168.1.9", Port: 4003}
	gotInfo, err := DecodeServerInfo(Make(info).Body)
	if err != nil || *gotInfo != *info {
		t.Errorf("DecodeServerInfo() = %+v, %v", gotInfo, err)
	}

	text := &TextMessage{Channel: "room", FromID: "a", NickName: "Ann", Message: "lunch?"}
	gotText, err := DecodeTextMessage(Make(text).Body)
	if err != nil || *gotText != *text {
		t.Errorf("DecodeTextMessage() = %+v, %v", gotText, err)
	}
}

func TestMalformedBodies(t *testing.T) {
	tests := []struct {
		name   string
		decode func([]byte) error
		body   []byte
	}{
		{"chat_truncated", func(b []byte) error { _, err := DecodeChatMessage(b); return err }, []byte{0x05, 'h'}},
		{"left_trailing", func(b []byte) error { _, err := DecodeLeft(b); return err }, append(Make(&Left{Channel: "c", UserID: "u"}).Body, 0x00)},
		{"color_short", func(b []byte) error { _, err := DecodeSetBackgroundColor(b); return err }, []byte{1, 2, 3}},
		{"res_show_stream_port", func(b []byte) error { _, err := DecodeResShowStream(b); return err }, []byte{0x01, 0xFF, 0xFF, 0x7F}},
		{"tcpsyn_body", DecodeEmpty, []byte{0x00}},
		{"sync_request_empty", func(b []byte) error { _, err := DecodeSyncRequest(b); return err }, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.decode(tc.body); !errors.Is(err, ErrMalformed) {
				t.Errorf("error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestBroadcastable(t *testing.T) {
	tests := []struct {
		code Code
		want bool
	}{
		{CodeTaskExecute, true},
		{CodeCreateItem, true},
		{CodeResizeCanvas, true},
		{CodeChatMessage, true},
		{CodeChangeShowStream, true},
		{CodeSyncRequest, false},
		{CodeJoinToServer, false},
		{CodeVersionInfo, false},
		{CodeProbeServer, false},
	}
	for _, tc := range tests {
		t.Run(tc.code.String(), func(t *testing.T) {
			if got := tc.code.Broadcastable(); got != tc.want {
				t.Errorf("Broadcastable() = %v, want %v", got, tc.want)
			}
		})
	}
}
