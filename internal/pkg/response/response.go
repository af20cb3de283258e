package response

import (
	"Parley/internal/api/dto"
	"Parley/internal/service"
	"errors"
	log "log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// Success 成功返回封装
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, dto.Response{
		Success: true,
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

// Fail HTTP 状态码与业务码一致
func Fail(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, dto.Response{
		Success: false,
		Code:    code,
		Message: message,
	})
}

// Error 按 ErrorMap 映射状态码，未知错误记录日志后返回 500
func Error(c *gin.Context, err error) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		Fail(c, http.StatusBadRequest, service.ErrParamInvalid.Error())
		return
	}

	var unmarshalTypeError *json.UnmarshalTypeError
	if errors.As(err, &unmarshalTypeError) {
		Fail(c, http.StatusBadRequest, "Json错误")
		return
	}

	code, known := service.StatusOf(err)
	if !known || code >= http.StatusInternalServerError {
		log.ErrorContext(c.Request.Context(), "Error", "path", c.FullPath(), "err", err)
	}
	Fail(c, code, service.PublicMessage(err))
}
