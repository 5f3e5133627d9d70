package protocol

// Code identifies the message carried by a packet. The high byte is the
// message family.
type Code uint16

// System family.
const (
	CodeVersionInfo     Code = 0x0101
	CodeChangeNickName  Code = 0x0102
	CodeJoinToServer    Code = 0x0103
	CodeJoinToSuperPeer Code = 0x0104
	CodeResJoin         Code = 0x0105
	CodeChangeSuperPeer Code = 0x0106
	CodeTCPSyn          Code = 0x0107
	CodeTCPAck          Code = 0x0108
	CodeSyncRequest     Code = 0x0109
	CodeSyncStart       Code = 0x010A
	CodeSyncComplete    Code = 0x010B
	CodeLeft            Code = 0x010C
	CodeChatMessage     Code = 0x010D
	CodeHistoryUserList Code = 0x010E
)

// Window family.
const (
	CodeResizeMainWindow     Code = 0x0201
	CodeResizeCanvas         Code = 0x0202
	CodeResizeWindowSplitter Code = 0x0203
	CodeChangeCanvasScroll   Code = 0x0204
)

// Paint family.
const (
	CodeClearScreen       Code = 0x0301
	CodeClearBackground   Code = 0x0302
	CodeSetBackgroundImg  Code = 0x0303
	CodeSetBackgroundGrid Code = 0x0304
	CodeSetBackgroundClr  Code = 0x0305
	CodeCreateItem        Code = 0x0306
)

// Task family.
const (
	CodeTaskExecute Code = 0x0401
)

// Screen-share family.
const (
	CodeChangeRecordStatus Code = 0x0501
	CodeChangeShowStream   Code = 0x0502
	CodeResShowStream      Code = 0x0503
)

// UDP control family.
const (
	CodeServerInfo Code = 0x0601
)

// Broadcast family.
const (
	CodeProbeServer Code = 0x0701
	CodeTextMessage Code = 0x0702
)

// Family returns the message family of the code.
func (c Code) Family() Family {
	return Family(c >> 8)
}

// Family groups related message codes.
type Family uint8

const (
	FamilySystem      Family = 0x01
	FamilyWindow      Family = 0x02
	FamilyPaint       Family = 0x03
	FamilyTask        Family = 0x04
	FamilyScreenShare Family = 0x05
	FamilyUDP         Family = 0x06
	FamilyBroadcast   Family = 0x07
)

var codeNames = map[Code]string{
	CodeVersionInfo:          "VersionInfo",
	CodeChangeNickName:       "ChangeNickName",
	CodeJoinToServer:         "JoinToServer",
	CodeJoinToSuperPeer:      "JoinToSuperPeer",
	CodeResJoin:              "ResJoin",
	CodeChangeSuperPeer:      "ChangeSuperPeer",
	CodeTCPSyn:               "TCPSyn",
	CodeTCPAck:               "TCPAck",
	CodeSyncRequest:          "SyncRequest",
	CodeSyncStart:            "SyncStart",
	CodeSyncComplete:         "SyncComplete",
	CodeLeft:                 "Left",
	CodeChatMessage:          "ChatMessage",
	CodeHistoryUserList:      "HistoryUserList",
	CodeResizeMainWindow:     "ResizeMainWindow",
	CodeResizeCanvas:         "ResizeCanvas",
	CodeResizeWindowSplitter: "ResizeWindowSplitter",
	CodeChangeCanvasScroll:   "ChangeCanvasScroll",
	CodeClearScreen:          "ClearScreen",
	CodeClearBackground:      "ClearBackground",
	CodeSetBackgroundImg:     "SetBackgroundImage",
	CodeSetBackgroundGrid:    "SetBackgroundGrid",
	CodeSetBackgroundClr:     "SetBackgroundColor",
	CodeCreateItem:           "CreateItem",
	CodeTaskExecute:          "TaskExecute",
	CodeChangeRecordStatus:   "ChangeRecordStatus",
	CodeChangeShowStream:     "ChangeShowStream",
	CodeResShowStream:        "ResShowStream",
	CodeServerInfo:           "ServerInfo",
	CodeProbeServer:          "ProbeServer",
	CodeTextMessage:          "TextMessage",
}

// String returns the string representation of the code.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "Unknown"
}

// Broadcastable reports whether a packet with this code, received by the
// super-peer from one member, is forwarded to every other member.
func (c Code) Broadcastable() bool {
	switch c.Family() {
	case FamilyWindow, FamilyPaint, FamilyTask, FamilyScreenShare:
		return true
	}
	switch c {
	case CodeChangeNickName, CodeChatMessage, CodeLeft:
		return true
	}
	return false
}
