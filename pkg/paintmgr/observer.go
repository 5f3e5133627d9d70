package paintmgr

import (
	"github.com/kingctan/sharedpainter/pkg/paint"
	"github.com/kingctan/sharedpainter/pkg/protocol"
	"github.com/kingctan/sharedpainter/pkg/session"
)

// Poster runs callbacks on the presentation context. uiloop.Loop
// implements it.
type Poster interface {
	Post(fn func()) bool
}

// Observer receives notifications on the presentation context, in the
// order the manager raised them. Embed BaseObserver to implement only the
// callbacks you need.
type Observer interface {
	OnConnected(role session.Role, remote string)
	OnDisconnected(role session.Role, remote string, err error)

	OnSyncStarted(fromID string)
	OnSyncCompleted()

	OnRosterChanged(count int)
	OnNickNameChanged(userID, prev, next string)

	OnTaskAdded(count int, playback bool)
	OnTaskExecuted(index int, t *paint.Task)
	OnTaskRolledBack(index int, t *paint.Task)
	OnPlayPositionChanged(position, count int)

	OnChatMessage(userID, nickName, message string)
	OnBroadcastText(channel, fromID, nickName, message string)

	OnMainWindowResized(width, height int)
	OnCanvasResized(width, height int)
	OnSplitterResized(sizes []int)
	OnCanvasScrolled(horizontal, vertical int)

	OnScreenCleared()
	OnBackgroundCleared()
	OnBackgroundImage(img *paint.Image)
	OnBackgroundGrid(size int)
	OnBackgroundColor(c paint.Color)

	OnRecordStatusChanged(userID string, recording bool)
	OnShowStreamChanged(userID string, sender, status bool)

	OnServerFound(info *protocol.ServerInfo)

	// OnError reports failures as *errors.Error values.
	OnError(err error)
}

// BaseObserver implements Observer with no-ops.
type BaseObserver struct{}

func (BaseObserver) OnConnected(session.Role, string)               {}
func (BaseObserver) OnDisconnected(session.Role, string, error)     {}
func (BaseObserver) OnSyncStarted(string)                           {}
func (BaseObserver) OnSyncCompleted()                               {}
func (BaseObserver) OnRosterChanged(int)                            {}
func (BaseObserver) OnNickNameChanged(string, string, string)       {}
func (BaseObserver) OnTaskAdded(int, bool)                          {}
func (BaseObserver) OnTaskExecuted(int, *paint.Task)                {}
func (BaseObserver) OnTaskRolledBack(int, *paint.Task)              {}
func (BaseObserver) OnPlayPositionChanged(int, int)                 {}
func (BaseObserver) OnChatMessage(string, string, string)           {}
func (BaseObserver) OnBroadcastText(string, string, string, string) {}
func (BaseObserver) OnMainWindowResized(int, int)                   {}
func (BaseObserver) OnCanvasResized(int, int)                       {}
func (BaseObserver) OnSplitterResized([]int)                        {}
func (BaseObserver) OnCanvasScrolled(int, int)                      {}
func (BaseObserver) OnScreenCleared()                               {}
func (BaseObserver) OnBackgroundCleared()                           {}
func (BaseObserver) OnBackgroundImage(*paint.Image)                 {}
func (BaseObserver) OnBackgroundGrid(int)                           {}
func (BaseObserver) OnBackgroundColor(paint.Color)                  {}
func (BaseObserver) OnRecordStatusChanged(string, bool)             {}
func (BaseObserver) OnShowStreamChanged(string, bool, bool)         {}
func (BaseObserver) OnServerFound(*protocol.ServerInfo)             {}
func (BaseObserver) OnError(error)                                  {}
