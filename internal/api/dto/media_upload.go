package dto

// MediaTempMetadata 批量上传后尚未被引用的媒体，缓存在 Redis 供清理任务回收
type MediaTempMetadata struct {
	UploaderID uint64  `json:"uploader_id"`
	MimeType   string  `json:"mime_type"`
	Size       int64   `json:"size"`
	Duration   float64 `json:"duration"`
	CreatedAt  int64   `json:"created_at"`
}

// MediaUploadDTO 单个文件的上传结果
type MediaUploadDTO struct {
	URL      string  `json:"url"`
	Key      string  `json:"key"`
	Mime     string  `json:"mime"`
	Size     int64   `json:"size"`
	Duration float64 `json:"duration,omitempty"`
	Original string  `json:"original"`
}
