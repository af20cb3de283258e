// Package conversation 单聊会话标识
package conversation

import (
	"errors"
	"strconv"
)

const separator = "_"

var ErrSelfConversation = errors.New("会话需要两个不同的参与者")

// ID 由双方用户 ID 生成与顺序无关的会话标识：小ID_大ID
func ID(a, b uint64) (string, error) {
	if a == b {
		return "", ErrSelfConversation
	}
	if a > b {
		a, b = b, a
	}
	return strconv.FormatUint(a, 10) + separator + strconv.FormatUint(b, 10), nil
}
