package consts

const (
	IMPresenceKey  = "im:presence:"
	MediaTempKey   = "media:temp"
	TokenRevokeKey = "token:revoked:"
)
