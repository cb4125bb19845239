package models

import "time"

// CanvasSnapshot is the locally cached stroke log of one room
type CanvasSnapshot struct {
	RoomID      string    `json:"room_id" gorm:"type:varchar(128);primaryKey"`
	Data        []byte    `json:"-"` // msgpack-encoded []Stroke
	StrokeCount int       `json:"stroke_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName overrides the table name
func (CanvasSnapshot) TableName() string {
	return "canvas_snapshots"
}

// ChatRecord is one cached chat line
type ChatRecord struct {
	ID        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	RoomID    string    `json:"room_id" gorm:"type:varchar(128);index"`
	Username  string    `json:"username" gorm:"type:varchar(128)"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

// TableName overrides the table name
func (ChatRecord) TableName() string {
	return "chat_messages"
}
