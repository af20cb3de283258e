package handler

import (
	"Parley/internal/pkg/consts"
	"Parley/internal/pkg/media"
	"Parley/internal/pkg/response"
	"Parley/internal/service"
	"errors"
	log "log/slog"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
)

// 表单字段与边界之外的余量
const multipartOverhead = 1 << 20

type MediaHandler struct {
	uploader     *media.BatchUploader
	maxBodyBytes int64
}

func NewMediaHandler(uploader *media.BatchUploader, maxBatchBytes int64) *MediaHandler {
	return &MediaHandler{uploader: uploader, maxBodyBytes: maxBatchBytes + multipartOverhead}
}

// Upload 批量上传图片与语音，任一文件不合格则整批失败
func (s *MediaHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodyBytes)

	form, err := c.MultipartForm()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Error(c, media.ErrBatchTooLarge)
			return
		}
		response.Error(c, service.ErrParamInvalid)
		return
	}
	defer func() {
		_ = form.RemoveAll()
	}()

	files := make([]*multipart.FileHeader, 0, len(form.File["files"])+1)
	files = append(files, form.File["files"]...)
	files = append(files, form.File["file"]...)

	res, err := s.uploader.Upload(c.Request.Context(), c.GetUint64(consts.UserIDKey), files)
	if err != nil {
		response.Error(c, err)
		return
	}

	log.InfoContext(c.Request.Context(), "media upload success and metadata cached", "count", len(res))
	response.Success(c, res)
}
