package gateway

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFrame(t *testing.T) {
	small := []byte(`{"event":"send-text","data":{},"ackId":"a"}`)
	data, hint, err := readFrame(bytes.NewReader(small), 1024)
	require.NoError(t, err)
	assert.Nil(t, hint)
	assert.Equal(t, small, data)

	// 恰好等于上限仍正常读取
	data, hint, err = readFrame(bytes.NewReader(small), int64(len(small)))
	require.NoError(t, err)
	assert.Nil(t, hint)
	assert.Len(t, data, len(small))

	tests := []struct {
		name  string
		frame string
		limit int64
		event string
		ackID string
	}{
		{"ack at tail", `{"event":"send-voice","data":{"file":"` + strings.Repeat("A", 20000) + `"},"ackId":"v1"}`, 1024, "send-voice", "v1"},
		{"ack at head", `{"ackId":"v2","event":"send-voice","data":{"file":"` + strings.Repeat("A", 20000) + `"}}`, 1024, "send-voice", "v2"},
		{"no ack", `{"event":"send-voice","data":{"file":"` + strings.Repeat("A", 20000) + `"}}`, 1024, "send-voice", ""},
		{"tiny limit", `{"event":"typing","data":{"x":"` + strings.Repeat("B", 100) + `"}}`, 16, "typing", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, hint, err := readFrame(strings.NewReader(tt.frame), tt.limit)
			require.NoError(t, err)
			assert.Nil(t, data)
			require.NotNil(t, hint)
			assert.Equal(t, tt.event, hint.event)
			assert.Equal(t, tt.ackID, hint.ackID)
		})
	}
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{n: 4}
	_, _ = tb.Write([]byte("ab"))
	_, _ = tb.Write([]byte("cde"))
	assert.Equal(t, "bcde", string(tb.buf))
	_, _ = tb.Write([]byte("0123456"))
	assert.Equal(t, "3456", string(tb.buf))
}
