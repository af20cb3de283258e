package service

import (
	"Parley/internal/pkg/media"
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	PayloadTooLarge     = 413
	InternalServerError = 500
)

var (
	ErrParamInvalid      = errors.New("参数错误")
	ErrEmptyBody         = errors.New("消息内容不能为空")
	ErrSelfMessage       = errors.New("不能给自己发送消息")
	ErrTargetUserInvalid = errors.New("目标用户无效")
	ErrMessageNotFound   = errors.New("消息不存在")
	ErrNotReceiver       = errors.New("只有接收者可以标记已读")
	ErrMediaKeyInvalid   = errors.New("媒体不存在或已过期")
	ErrPersistence       = errors.New("消息保存失败")
	UnauthorizedError    = errors.New("未登录或登录已过期")
	UnExpectedError      = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:           BadRequest,
	ErrEmptyBody:              BadRequest,
	ErrSelfMessage:            BadRequest,
	ErrTargetUserInvalid:      BadRequest,
	ErrMessageNotFound:        NotFound,
	ErrNotReceiver:            Forbidden,
	ErrMediaKeyInvalid:        BadRequest,
	ErrPersistence:            InternalServerError,
	UnauthorizedError:         Unauthorized,
	UnExpectedError:           InternalServerError,
	media.ErrEmptyPayload:     BadRequest,
	media.ErrInvalidPayload:   BadRequest,
	media.ErrPayloadTooLarge:  PayloadTooLarge,
	media.ErrBatchTooLarge:    PayloadTooLarge,
	media.ErrUnsupportedMedia: BadRequest,
	media.ErrVoiceTooLong:     BadRequest,
	media.ErrProbeFailed:      BadRequest,
	media.ErrNoFiles:          BadRequest,
	media.ErrTempNotFound:     BadRequest,
}

// StatusOf 解析错误对应的状态码，支持 %w 包装，未知错误返回 500
func StatusOf(err error) (int, bool) {
	if code, ok := ErrorMap[err]; ok {
		return code, true
	}
	for target, code := range ErrorMap {
		if errors.Is(err, target) {
			return code, true
		}
	}
	return InternalServerError, false
}

// PublicMessage 对外展示的错误信息，5xx 不暴露底层原因
func PublicMessage(err error) string {
	code, known := StatusOf(err)
	if !known {
		return UnExpectedError.Error()
	}
	if code >= InternalServerError {
		if errors.Is(err, ErrPersistence) {
			return ErrPersistence.Error()
		}
		return UnExpectedError.Error()
	}
	return err.Error()
}
