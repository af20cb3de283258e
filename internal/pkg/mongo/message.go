package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message MongoDB 单聊消息明细
type Message struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	ConversationID    string             `bson:"conversation_id"` // min_max
	SenderID          uint64             `bson:"sender_id"`
	ReceiverID        uint64             `bson:"receiver_id"`
	Type              string             `bson:"type"` // text | voice
	Text              string             `bson:"text,omitempty"`
	Voice             *Voice             `bson:"voice,omitempty"`
	IsSeen            bool               `bson:"is_seen"`
	SeenAt            *time.Time         `bson:"seen_at"`
	DeletedBySender   bool               `bson:"deleted_by_sender"`
	DeletedByReceiver bool               `bson:"deleted_by_receiver"`
	IsEdited          bool               `bson:"is_edited"`
	EditedAt          *time.Time         `bson:"edited_at,omitempty"`
	CreatedAt         time.Time          `bson:"created_at"`
}

// Voice 语音附件
type Voice struct {
	URL       string  `bson:"url"`
	Filename  string  `bson:"filename"`
	SizeBytes int64   `bson:"size_bytes"`
	MimeType  string  `bson:"mime_type,omitempty"`
	Duration  float64 `bson:"duration,omitempty"`
}

// VisibleTo 消息对 viewer 一侧是否未被软删除
func (m *Message) VisibleTo(viewerID uint64) bool {
	switch viewerID {
	case m.SenderID:
		return !m.DeletedBySender
	case m.ReceiverID:
		return !m.DeletedByReceiver
	default:
		return false
	}
}

// HistoryQuery 分页查询条件，Before 为空表示从最新开始
type HistoryQuery struct {
	ConversationID string
	ViewerID       uint64
	Before         *time.Time
	Limit          int
}
