package media

import (
	"Parley/internal/pkg/consts"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

type Kind int

const (
	KindUnsupported Kind = iota
	KindImage
	KindAudio
)

var allowedImages = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
}

// 浏览器 MediaRecorder 录制的语音常被识别为 webm/ogg/mp4 容器
var audioContainers = map[string]struct{}{
	"video/webm":      {},
	"video/mp4":       {},
	"application/ogg": {},
}

// Classify 依据嗅探到的 MIME 判断文件类别
func Classify(mt *mimetype.MIME) Kind {
	return ClassifyType(baseType(mt))
}

// ClassifyType 依据已记录的 MIME 字符串判断文件类别
func ClassifyType(mime string) Kind {
	base, _, _ := strings.Cut(mime, ";")
	base = strings.ToLower(strings.TrimSpace(base))
	if _, ok := allowedImages[base]; ok {
		return KindImage
	}
	if strings.HasPrefix(base, consts.MimePrefixAudio+"/") {
		return KindAudio
	}
	if _, ok := audioContainers[base]; ok {
		return KindAudio
	}
	return KindUnsupported
}

func baseType(mt *mimetype.MIME) string {
	s := mt.String()
	if i := strings.IndexByte(s, ';'); i >= 0 {
		return s[:i]
	}
	return s
}
