package session

import (
	"time"

	"tempmail/web/internal/domain"
)

// maxPendingNotices 未送达通知的保留上限，超出时丢弃最早的
const maxPendingNotices = 20

// State 是单个浏览器的会话状态，只由引擎协程读写
type State struct {
	Address    *domain.TemporaryAddress
	Messages   []domain.Message
	SelectedID string
	Generating bool
	Fetching   bool

	epoch uint64
	// 拉取进行中收到的推送，拉取结果里没有的保留在列表前部
	pushedDuringLoad map[string]struct{}
	pending          []domain.Notice
}

// reset 清空地址、邮件和选中项，并使所有在途回复失效
func (s *State) reset(addr *domain.TemporaryAddress) {
	s.Address = addr
	s.Messages = nil
	s.SelectedID = ""
	s.Fetching = false
	s.pushedDuringLoad = nil
	s.epoch++
}

// current 判断回复是否属于当前地址
func (s *State) current(epoch uint64, addressID string) bool {
	return s.Address != nil && s.epoch == epoch && s.Address.ID == addressID
}

func (s *State) indexOf(id string) int {
	for i := range s.Messages {
		if s.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// prepend 把推送的邮件放到列表最前，不重新排序
func (s *State) prepend(msg domain.Message) {
	s.Messages = append([]domain.Message{msg}, s.Messages...)
	if s.Fetching {
		if s.pushedDuringLoad == nil {
			s.pushedDuringLoad = make(map[string]struct{})
		}
		s.pushedDuringLoad[msg.ID] = struct{}{}
	}
}

// replace 用拉取结果替换列表，保留拉取期间推送且结果中没有的邮件
func (s *State) replace(loaded []domain.Message) {
	inResult := make(map[string]struct{}, len(loaded))
	for _, m := range loaded {
		inResult[m.ID] = struct{}{}
	}

	merged := make([]domain.Message, 0, len(loaded)+len(s.pushedDuringLoad))
	for _, m := range s.Messages {
		if _, pushed := s.pushedDuringLoad[m.ID]; !pushed {
			continue
		}
		if _, ok := inResult[m.ID]; ok {
			continue
		}
		merged = append(merged, m)
	}
	merged = append(merged, loaded...)

	s.Messages = merged
	s.pushedDuringLoad = nil
	s.Fetching = false
}

func (s *State) queueNotice(n domain.Notice) {
	s.pending = append(s.pending, n)
	if len(s.pending) > maxPendingNotices {
		s.pending = s.pending[len(s.pending)-maxPendingNotices:]
	}
}

func (s *State) drainNotices() []domain.Notice {
	out := s.pending
	s.pending = nil
	return out
}

// View 是某一时刻会话状态的只读副本
type View struct {
	BrowserID  string                   `json:"-"`
	Address    *domain.TemporaryAddress `json:"address"`
	Messages   []domain.Message         `json:"messages"`
	SelectedID string                   `json:"selected_id,omitempty"`
	Selected   *domain.Message          `json:"selected,omitempty"`
	Generating bool                     `json:"generating"`
	Fetching   bool                     `json:"fetching"`
	Notices    []domain.Notice          `json:"notices,omitempty"`
	Now        time.Time                `json:"now"`
}

// HasAddress 报告当前是否有有效的临时邮箱
func (v *View) HasAddress() bool {
	return v.Address != nil
}

func (s *State) view(browserID string, now time.Time) View {
	v := View{
		BrowserID:  browserID,
		Messages:   make([]domain.Message, len(s.Messages)),
		SelectedID: s.SelectedID,
		Generating: s.Generating,
		Fetching:   s.Fetching,
		Now:        now,
	}
	copy(v.Messages, s.Messages)
	if s.Address != nil {
		addr := *s.Address
		v.Address = &addr
	}
	if s.SelectedID != "" {
		if i := s.indexOf(s.SelectedID); i >= 0 {
			msg := s.Messages[i]
			v.Selected = &msg
		}
	}
	return v
}
