package gateway

import (
	"bytes"
	"io"
	"regexp"
)

// 超限帧只保留首尾这么多字节用于找回 event 与 ackId
const frameHintWindow = 4096

var (
	eventPattern = regexp.MustCompile(`"event"\s*:\s*"([^"\\]{1,64})"`)
	ackIDPattern = regexp.MustCompile(`"ackId"\s*:\s*"([^"\\]{1,128})"`)
)

// frameHint 超限帧中尽力识别出的字段
type frameHint struct {
	event string
	ackID string
}

// tailBuffer 只保留最后写入的 n 个字节
type tailBuffer struct {
	buf []byte
	n   int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	written := len(p)
	if len(p) >= t.n {
		t.buf = append(t.buf[:0], p[len(p)-t.n:]...)
		return written, nil
	}
	if over := len(t.buf) + len(p) - t.n; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	t.buf = append(t.buf, p...)
	return written, nil
}

// readFrame 最多读取 limit 字节；超限时丢弃剩余内容并返回首尾片段中的 event/ackId
func readFrame(r io.Reader, limit int64) ([]byte, *frameHint, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, nil, err
	}
	if int64(len(data)) <= limit {
		return data, nil, nil
	}

	head := bytes.Clone(data[:min(len(data), frameHintWindow)])
	tail := &tailBuffer{n: frameHintWindow}
	_, _ = tail.Write(data)
	data = nil
	if _, err = io.Copy(tail, r); err != nil {
		return nil, nil, err
	}
	return nil, extractHint(head, tail.buf), nil
}

func extractHint(parts ...[]byte) *frameHint {
	h := &frameHint{}
	for _, p := range parts {
		if m := eventPattern.FindSubmatch(p); m != nil && h.event == "" {
			h.event = string(m[1])
		}
		if m := ackIDPattern.FindSubmatch(p); m != nil && h.ackID == "" {
			h.ackID = string(m[1])
		}
	}
	return h
}
