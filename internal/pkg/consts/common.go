package consts

const (
	MimePrefixImage = "image"
	MimePrefixAudio = "audio"
)

const (
	// UserIDKey 鉴权中间件写入 gin.Context 的用户 ID
	UserIDKey = "user_id"
	RolesKey  = "roles"
)

const (
	MsgTypeText  = "text"
	MsgTypeVoice = "voice"

	// VoicePreview 会话列表中语音消息的摘要
	VoicePreview = "[语音]"
)

const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)
