package dto

import (
	"time"

	"github.com/goccy/go-json"
)

// 客户端 -> 网关事件
const (
	EventJoin      = "join"
	EventTyping    = "typing"
	EventSendText  = "send-text"
	EventSendVoice = "send-voice"
	EventMarkSeen  = "mark-seen"
)

// 网关 -> 客户端事件
const (
	EventPresenceUpdate = "presence:update"
	EventMessageNew     = "message:new"
	EventMessageSeen    = "message:seen"
	EventMessageSeenAck = "message:seen:ack"
	EventAck            = "ack"
	EventError          = "error"
)

// InFrame 客户端上行帧
type InFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	AckID string          `json:"ackId,omitempty"`
}

// OutFrame 网关下行帧
type OutFrame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
	AckID string      `json:"ackId,omitempty"`
}

type JoinReq struct {
	PeerID uint64 `json:"peerId" validate:"required"`
}

type TypingReq struct {
	PeerID   uint64 `json:"peerId" validate:"required"`
	IsTyping bool   `json:"isTyping"`
}

// SendTextReq 文本消息，WS 与 HTTP 共用
type SendTextReq struct {
	ReceiverID uint64 `json:"receiverId" binding:"required" validate:"required"`
	Body       string `json:"body"`
}

type SendVoiceReq struct {
	ReceiverID uint64        `json:"receiverId" validate:"required"`
	File       BinaryPayload `json:"file"`
}

type MarkSeenReq struct {
	MessageID string `json:"messageId" validate:"required"`
}

// AckResp 带 ackId 请求的回执
type AckResp struct {
	Success bool        `json:"success"`
	Message *MessageDTO `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ErrorResp 无 ackId 时的失败通知，仅发给发起连接
type ErrorResp struct {
	Event   string `json:"event"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type PresenceUpdate struct {
	UserID uint64 `json:"userId"`
	Status string `json:"status"`
}

type TypingEvent struct {
	UserID   uint64 `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// VoiceDTO 语音附件
type VoiceDTO struct {
	URL       string  `json:"url"`
	Filename  string  `json:"filename"`
	SizeBytes int64   `json:"sizeBytes"`
	MimeType  string  `json:"mimeType,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
}

// MessageDTO 消息明细
type MessageDTO struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       uint64     `json:"senderId"`
	ReceiverID     uint64     `json:"receiverId"`
	Type           string     `json:"type"`
	Text           string     `json:"text,omitempty"`
	Voice          *VoiceDTO  `json:"voice,omitempty"`
	IsSeen         bool       `json:"isSeen"`
	SeenAt         *time.Time `json:"seenAt"`
	IsEdited       bool       `json:"isEdited"`
	EditedAt       *time.Time `json:"editedAt,omitempty"`
	// 软删除标记，查询时已按请求方过滤
	DeletedBySender   bool      `json:"deletedBySender"`
	DeletedByReceiver bool      `json:"deletedByReceiver"`
	CreatedAt         time.Time `json:"createdAt"`
}

// SeenEvent 已读通知
type SeenEvent struct {
	MessageID string    `json:"messageId"`
	SeenAt    time.Time `json:"seenAt"`
	IsSeen    bool      `json:"isSeen"`
}

// HistoryResp 历史消息分页
type HistoryResp struct {
	Messages []*MessageDTO `json:"messages"`
	HasMore  bool          `json:"hasMore"`
}

type PresenceDTO struct {
	Online     bool       `json:"online"`
	LastActive *time.Time `json:"lastActive"`
}

// MarkSeenResp REST 标记已读
type MarkSeenResp struct {
	Message      string      `json:"message"`
	Data         *MessageDTO `json:"data"`
	SenderStatus PresenceDTO `json:"senderStatus"`
}

// ConversationDTO 会话列表项：每个对手方的最近一条消息
type ConversationDTO struct {
	ID              uint64     `json:"id"`
	Username        string     `json:"username"`
	Name            string     `json:"name"`
	ProfileImageURL string     `json:"profileImageUrl"`
	LastMessage     string     `json:"lastMessage"`
	IsSeen          bool       `json:"isSeen"`
	SeenAt          *time.Time `json:"seenAt"`
	LastMessageAt   time.Time  `json:"lastMessageAt"`
	Online          bool       `json:"online"`
}

type ConversationListResp struct {
	Success bool               `json:"success"`
	Data    []*ConversationDTO `json:"data"`
}

type HistoryQuery struct {
	Limit  int    `form:"limit"`
	Before string `form:"before"`
}

// SendUploadedVoiceReq 引用批量上传得到的语音 key 发送语音消息
type SendUploadedVoiceReq struct {
	ReceiverID uint64 `json:"receiverId" binding:"required" validate:"required"`
	Key        string `json:"key" binding:"required" validate:"required"`
}
