package session

// 推送处理结果
const (
	PushAccepted  = "accepted"
	PushStale     = "stale"
	PushDuplicate = "duplicate"
)

// Recorder 记录会话指标
type Recorder interface {
	Generation(ok bool)
	Expiration()
	Push(outcome string)
	Load(ok bool)
	SessionOpened()
	SessionClosed()
}

type nopRecorder struct{}

func (nopRecorder) Generation(bool) {}
func (nopRecorder) Expiration()     {}
func (nopRecorder) Push(string)     {}
func (nopRecorder) Load(bool)       {}
func (nopRecorder) SessionOpened()  {}
func (nopRecorder) SessionClosed()  {}

// EventKind 推送给浏览器的事件类型
type EventKind string

const (
	// EventState 会话状态已变化，页面应重新拉取
	EventState EventKind = "state"
	// EventNotice 新的用户提示
	EventNotice EventKind = "notice"
)

// Event 推送给浏览器的事件
type Event struct {
	Kind   EventKind      `json:"type"`
	Notice *NoticePayload `json:"notice,omitempty"`
}

// NoticePayload 通知事件载荷
type NoticePayload struct {
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Destructive bool   `json:"destructive"`
}

// Observer 接收会话事件，通常是 WebSocket hub
//
// Notify 在引擎协程中调用，必须立即返回；返回 false 表示没有送达任何连接。
type Observer interface {
	Notify(browserID string, ev Event) bool
}

type nopObserver struct{}

func (nopObserver) Notify(string, Event) bool { return false }
