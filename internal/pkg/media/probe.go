package media

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Prober 探测媒体时长
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// FFprobe 调用 ffprobe 读取容器时长
type FFprobe struct {
	Path string
}

func (p FFprobe) Duration(ctx context.Context, path string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.Path,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		"-i", path,
	)

	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe 解析失败: %w", err)
	}

	sec, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe 输出异常 %q: %w", out, err)
	}
	return time.Duration(sec * float64(time.Second)), nil
}
