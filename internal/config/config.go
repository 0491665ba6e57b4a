package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	AccessSecret string
}

type DetectorConfig struct {
	APIURL     string
	APIKey     string
	Workspace  string
	WorkflowID string
	Timeout    time.Duration
}

type CameraConfig struct {
	RTSPURL string
	FPS     int
}

// AuditConfig governs sampling and session discipline for the scoring
// pipeline.
type AuditConfig struct {
	SkipInterval      int
	ProgressInterval  int
	LiveDuration      time.Duration
	PollInterval      time.Duration
	TargetWidthUpload int
	TargetWidthLive   int
	Policy            string
	PolicyFile        string
}

type MediaConfig struct {
	FFmpegPath  string
	FFprobePath string
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Detector    DetectorConfig
	Camera      CameraConfig
	Audit       AuditConfig
	Media       MediaConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")

	v.AutomaticEnv()

	_ = v.ReadInConfig()

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Detector: DetectorConfig{
			APIURL:     v.GetString("DETECT_API_URL"),
			APIKey:     v.GetString("DETECT_API_KEY"),
			Workspace:  v.GetString("DETECT_WORKSPACE"),
			WorkflowID: v.GetString("DETECT_WORKFLOW"),
			Timeout:    v.GetDuration("DETECT_TIMEOUT"),
		},
		Camera: CameraConfig{
			RTSPURL: v.GetString("CAMERA_RTSP_URL"),
			FPS:     v.GetInt("CAMERA_FPS"),
		},
		Audit: AuditConfig{
			SkipInterval:      v.GetInt("AUDIT_SKIP_INTERVAL"),
			ProgressInterval:  v.GetInt("AUDIT_PROGRESS_INTERVAL"),
			LiveDuration:      v.GetDuration("AUDIT_LIVE_DURATION"),
			PollInterval:      v.GetDuration("AUDIT_POLL_INTERVAL"),
			TargetWidthUpload: v.GetInt("AUDIT_TARGET_WIDTH_UPLOAD"),
			TargetWidthLive:   v.GetInt("AUDIT_TARGET_WIDTH_LIVE"),
			Policy:            v.GetString("AUDIT_POLICY"),
			PolicyFile:        v.GetString("AUDIT_POLICY_FILE"),
		},
		Media: MediaConfig{
			FFmpegPath:  v.GetString("FFMPEG_PATH"),
			FFprobePath: v.GetString("FFPROBE_PATH"),
		},
	}

	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Detector.APIURL == "" {
		cfg.Detector.APIURL = "https://detect.roboflow.com"
	}
	if cfg.Detector.Timeout == 0 {
		cfg.Detector.Timeout = 30 * time.Second
	}
	if cfg.Camera.FPS == 0 {
		cfg.Camera.FPS = 10
	}
	if cfg.Audit.SkipInterval == 0 {
		cfg.Audit.SkipInterval = 30
	}
	if cfg.Audit.ProgressInterval == 0 {
		cfg.Audit.ProgressInterval = 5
	}
	if cfg.Audit.LiveDuration == 0 {
		cfg.Audit.LiveDuration = 15 * time.Second
	}
	if cfg.Audit.PollInterval == 0 {
		cfg.Audit.PollInterval = time.Second
	}
	if cfg.Audit.TargetWidthUpload == 0 {
		cfg.Audit.TargetWidthUpload = 480
	}
	if cfg.Audit.TargetWidthLive == 0 {
		cfg.Audit.TargetWidthLive = 640
	}
	if cfg.Audit.Policy == "" {
		cfg.Audit.Policy = "cosmetic"
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if cfg.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.Detector.APIKey == "" {
		return fmt.Errorf("DETECT_API_KEY is required")
	}
	if cfg.Detector.Workspace == "" {
		return fmt.Errorf("DETECT_WORKSPACE is required")
	}
	if cfg.Detector.WorkflowID == "" {
		return fmt.Errorf("DETECT_WORKFLOW is required")
	}
	return nil
}
