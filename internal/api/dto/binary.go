package dto

import (
	"bytes"
	"errors"

	"github.com/goccy/go-json"
)

var errUnsupportedPayload = errors.New("unsupported binary payload")

// BinaryPayload 上行二进制数据：base64 字符串（可带 data URL 前缀）、字节数组，
// 或 {"type":"Buffer","data":[...]} 形式
type BinaryPayload struct {
	Encoded string
	Raw     []byte
}

func (p *BinaryPayload) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	switch b[0] {
	case '"':
		return json.Unmarshal(b, &p.Encoded)
	case '[':
		return p.unmarshalBytes(b)
	case '{':
		var buf struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(b, &buf); err != nil {
			return err
		}
		if buf.Type != "Buffer" {
			return errUnsupportedPayload
		}
		return p.unmarshalBytes(buf.Data)
	}
	return errUnsupportedPayload
}

func (p *BinaryPayload) unmarshalBytes(b []byte) error {
	var ints []int
	if err := json.Unmarshal(b, &ints); err != nil {
		return err
	}
	raw := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return errUnsupportedPayload
		}
		raw[i] = byte(v)
	}
	p.Raw = raw
	return nil
}

// Empty 是否未携带任何数据
func (p BinaryPayload) Empty() bool {
	return p.Encoded == "" && len(p.Raw) == 0
}
