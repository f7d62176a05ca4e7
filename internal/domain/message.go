package domain

import "time"

// Message 表示临时邮箱收到的一封邮件（received_emails 表）。
//
// 邮件由外部收信管道写入，前端只读。
type Message struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TempEmailID string    `json:"temp_email_id" gorm:"column:temp_email_id;type:varchar(36);index;not null"`
	FromAddress string    `json:"from_address" gorm:"column:from_address;type:varchar(255)"`
	Subject     string    `json:"subject" gorm:"type:varchar(500)"`
	BodyText    string    `json:"body_text" gorm:"column:body_text;type:text"`
	BodyHTML    string    `json:"body_html,omitempty" gorm:"column:body_html;type:text"`
	ReceivedAt  time.Time `json:"received_at" gorm:"column:received_at;index"`
}

// TableName 指定 GORM 表名。
func (Message) TableName() string {
	return "received_emails"
}

// HasHTML 报告邮件是否带有 HTML 正文。
func (m *Message) HasHTML() bool {
	return m.BodyHTML != ""
}
