package media

import "errors"

var (
	ErrEmptyPayload     = errors.New("附件内容为空")
	ErrInvalidPayload   = errors.New("附件编码无法解析")
	ErrPayloadTooLarge  = errors.New("附件超过大小限制")
	ErrUnsupportedMedia = errors.New("不支持的文件类型")
	ErrBatchTooLarge    = errors.New("上传总大小超过限制")
	ErrVoiceTooLong     = errors.New("语音时长超过限制")
	ErrProbeFailed      = errors.New("无法解析媒体时长")
	ErrNoFiles          = errors.New("未上传任何文件")
	ErrNameExhausted    = errors.New("无法生成不冲突的文件名")
	ErrTempNotFound     = errors.New("临时媒体不存在或已过期")
)
