package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Gateway   GatewayConfig
	RateLimit RateLimitConfig
	OpenAI    OpenAIConfig
	S3        S3Config
	FFmpeg    FFmpegConfig
	Pipeline  PipelineConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

// GatewayConfig controls ForwardAuth mode: when enabled, user identity
// comes from X-User-* headers set by the gateway.
type GatewayConfig struct {
	Enabled bool
}

type RateLimitConfig struct {
	ProcessPerHour int
	PresignPerHour int
}

type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	WhisperModel string
	ChatModel    string
}

type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type FFmpegConfig struct {
	BinPath     string
	FFprobePath string
	YtdlpPath   string
}

type PipelineConfig struct {
	WorkDir            string
	ChunkMinutes       int
	MaxAudioSizeMB     int
	DetectInteractions bool
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("OPENAI_API_KEY")
	readSecret("S3_ACCESS_KEY")
	readSecret("S3_SECRET_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = viper.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	_ = viper.BindEnv("openai.whisper_model", "OPENAI_WHISPER_MODEL")
	_ = viper.BindEnv("openai.chat_model", "OPENAI_CHAT_MODEL")
	_ = viper.BindEnv("s3.region", "S3_REGION")
	_ = viper.BindEnv("s3.access_key_id", "S3_ACCESS_KEY")
	_ = viper.BindEnv("s3.secret_access_key", "S3_SECRET_KEY")
	_ = viper.BindEnv("s3.bucket_name", "S3_BUCKET_NAME")
	_ = viper.BindEnv("s3.public_url", "S3_PUBLIC_URL")
	_ = viper.BindEnv("ffmpeg.bin_path", "FFMPEG_PATH")
	_ = viper.BindEnv("ffmpeg.ffprobe_path", "FFPROBE_PATH")
	_ = viper.BindEnv("ffmpeg.ytdlp_path", "YTDLP_PATH")
	_ = viper.BindEnv("pipeline.work_dir", "PIPELINE_WORK_DIR")
	_ = viper.BindEnv("pipeline.chunk_minutes", "PIPELINE_CHUNK_MINUTES")
	_ = viper.BindEnv("pipeline.max_audio_size_mb", "PIPELINE_MAX_AUDIO_SIZE_MB")
	_ = viper.BindEnv("pipeline.detect_interactions", "PIPELINE_DETECT_INTERACTIONS")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("gateway.enabled", false)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.process_per_hour", 10)
	viper.SetDefault("ratelimit.presign_per_hour", 50)

	// OpenAI defaults
	viper.SetDefault("openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("openai.whisper_model", "whisper-1")
	viper.SetDefault("openai.chat_model", "gpt-4o-mini")

	// S3 defaults
	viper.SetDefault("s3.region", "ap-south-1")
	viper.SetDefault("s3.bucket_name", "lisa-research")

	// Tool defaults
	viper.SetDefault("ffmpeg.bin_path", "ffmpeg")
	viper.SetDefault("ffmpeg.ffprobe_path", "ffprobe")
	viper.SetDefault("ffmpeg.ytdlp_path", "yt-dlp")

	// Pipeline defaults
	viper.SetDefault("pipeline.work_dir", os.TempDir())
	viper.SetDefault("pipeline.chunk_minutes", 10)
	viper.SetDefault("pipeline.max_audio_size_mb", 25)
	viper.SetDefault("pipeline.detect_interactions", true)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
		RateLimit: RateLimitConfig{
			ProcessPerHour: viper.GetInt("ratelimit.process_per_hour"),
			PresignPerHour: viper.GetInt("ratelimit.presign_per_hour"),
		},
		OpenAI: OpenAIConfig{
			APIKey:       viper.GetString("openai.api_key"),
			BaseURL:      viper.GetString("openai.base_url"),
			WhisperModel: viper.GetString("openai.whisper_model"),
			ChatModel:    viper.GetString("openai.chat_model"),
		},
		S3: S3Config{
			Region:          viper.GetString("s3.region"),
			AccessKeyID:     viper.GetString("s3.access_key_id"),
			SecretAccessKey: viper.GetString("s3.secret_access_key"),
			BucketName:      viper.GetString("s3.bucket_name"),
			PublicURL:       viper.GetString("s3.public_url"),
		},
		FFmpeg: FFmpegConfig{
			BinPath:     viper.GetString("ffmpeg.bin_path"),
			FFprobePath: viper.GetString("ffmpeg.ffprobe_path"),
			YtdlpPath:   viper.GetString("ffmpeg.ytdlp_path"),
		},
		Pipeline: PipelineConfig{
			WorkDir:            viper.GetString("pipeline.work_dir"),
			ChunkMinutes:       viper.GetInt("pipeline.chunk_minutes"),
			MaxAudioSizeMB:     viper.GetInt("pipeline.max_audio_size_mb"),
			DetectInteractions: viper.GetBool("pipeline.detect_interactions"),
		},
	}

	return cfg, nil
}
