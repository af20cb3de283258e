package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Cfg 全局可访问的配置实例
var Cfg *Config

const (
	MiB = 1 << 20
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("storage.driver", "minio")
	v.SetDefault("storage.local_dir", "./uploads")
	v.SetDefault("lib_path.ffprobe", "ffprobe")
	v.SetDefault("jwt.secret", "Parley")
	v.SetDefault("im.online_threshold", "5m")
	v.SetDefault("im.voice_max_bytes", 20*MiB)
	v.SetDefault("im.read_limit_bytes", 28*MiB)
	v.SetDefault("im.send_buffer", 256)
	v.SetDefault("im.relay.channel", "im:relay")
	v.SetDefault("upload.max_image_bytes", 4*MiB)
	v.SetDefault("upload.max_audio_bytes", 20*MiB)
	v.SetDefault("upload.max_batch_bytes", 40*MiB)
	v.SetDefault("upload.max_voice_duration", "15m")
	v.SetDefault("upload.temp_expiration", "24h")
	v.SetDefault("upload.cleanup_spec", "0 0 * * * *")
	v.SetDefault("database.slow_threshold", "200ms")
	v.SetDefault("mongo.max_pool_size", 100)
	v.SetDefault("mongo.slow_threshold", "200ms")
}

// LoadConfig 从文件加载配置并填充到 Cfg
func LoadConfig() error {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("config file not found: %w", err)
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	Cfg = &cfg

	return nil
}

// Default 返回仅包含默认值的配置，测试与本地工具使用
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}
