package domain

// NoticeKind 通知类型
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
	NoticeInfo    NoticeKind = "info"
	NoticeExpired NoticeKind = "expired"
	NoticeNewMail NoticeKind = "new_mail"
)

// Notice 是展示给用户的提示（toast）。
type Notice struct {
	Kind        NoticeKind `json:"kind"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
}

// Destructive 报告通知是否应以警示样式展示。
func (n Notice) Destructive() bool {
	return n.Kind == NoticeError || n.Kind == NoticeExpired
}

// 预定义的通知文案
var (
	NoticeGenerated = Notice{
		Kind:        NoticeSuccess,
		Title:       "Success!",
		Description: "New temporary email created",
	}
	NoticeGenerateFailed = Notice{
		Kind:        NoticeError,
		Title:       "Error",
		Description: "Failed to generate email. Make sure backend is running.",
	}
	NoticeAddressExpired = Notice{
		Kind:        NoticeExpired,
		Title:       "Email Expired",
		Description: "Your temporary email has expired",
	}
	NoticeMailArrived = Notice{
		Kind:        NoticeNewMail,
		Title:       "New Email!",
		Description: "You've received a new email",
	}
)
