package config

import "time"

// Config 配置主体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	DB       DBConfig       `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logstash LogstashConfig `mapstructure:"logstash"`
	LibPath  LibPathConfig  `mapstructure:"lib_path"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	IM       IMConfig       `mapstructure:"im"`
	Upload   UploadConfig   `mapstructure:"upload"`
}

// ServerConfig Server配置
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig 数据库配置
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	MaxIdle     int    `mapstructure:"max_idle"`
	MaxOpen     int    `mapstructure:"max_open"`
	MaxLifetime int    `mapstructure:"max_lifetime"`
	// 超过该耗时的 SQL 记为慢查询
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MongoConfig struct {
	URL           string        `mapstructure:"url"`
	Database      string        `mapstructure:"database"`
	MaxPoolSize   uint64        `mapstructure:"max_pool_size"`
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
}

// MinIOConfig MinIO配置
type MinIOConfig struct {
	InternalEndpoint string `mapstructure:"internal_endpoint"`
	ExternalEndpoint string `mapstructure:"external_endpoint"`
	AccessKey        string `mapstructure:"access_key"`
	SecretKey        string `mapstructure:"secret_key"`
	MainBucket       string `mapstructure:"main_bucket"`
	InternalUseSSL   bool   `mapstructure:"internal_use_ssl"`
	UsePublicLink    bool   `mapstructure:"use_public_link"`
}

// StorageConfig 附件存储后端：minio 或 local
type StorageConfig struct {
	Driver    string `mapstructure:"driver"`
	LocalDir  string `mapstructure:"local_dir"`
	PublicURL string `mapstructure:"public_url"`
}

type LogstashConfig struct {
	Address string `mapstructure:"address"`
	Index   string `mapstructure:"index"`
	Token   string `mapstructure:"token"`
}

// LibPathConfig 库路径
type LibPathConfig struct {
	FFprobe string `mapstructure:"ffprobe"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// IMConfig 即时通讯网关参数
type IMConfig struct {
	OnlineThreshold time.Duration `mapstructure:"online_threshold"`
	VoiceMaxBytes   int64         `mapstructure:"voice_max_bytes"`
	ReadLimitBytes  int64         `mapstructure:"read_limit_bytes"`
	SendBuffer      int           `mapstructure:"send_buffer"`
	Relay           RelayConfig   `mapstructure:"relay"`
}

// RelayConfig 多实例部署时通过 Redis Pub/Sub 转发投递
type RelayConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Channel string `mapstructure:"channel"`
}

// UploadConfig 批量上传校验参数
type UploadConfig struct {
	TempDir          string        `mapstructure:"temp_dir"`
	MaxImageBytes    int64         `mapstructure:"max_image_bytes"`
	MaxAudioBytes    int64         `mapstructure:"max_audio_bytes"`
	MaxBatchBytes    int64         `mapstructure:"max_batch_bytes"`
	MaxVoiceDuration time.Duration `mapstructure:"max_voice_duration"`
	TempExpiration   time.Duration `mapstructure:"temp_expiration"`
	CleanupSpec      string        `mapstructure:"cleanup_spec"`
}
