package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Providers
	FaceProvider   string `envconfig:"FACE_PROVIDER" default:"deepface"`
	PersonProvider string `envconfig:"PERSON_PROVIDER" default:"pose"`
	DeepFaceURL    string `envconfig:"DEEPFACE_URL" default:"http://localhost:5005"`
	PoseURL        string `envconfig:"POSE_URL" default:"http://localhost:5006"`
	AWSRegion      string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Cameras accepted in addition to the registry table
	Cameras     []string `envconfig:"CAMERAS"`
	IngestToken string   `envconfig:"INGEST_TOKEN"`

	Hub      HubConfig
	Pipeline PipelineConfig
	Matching MatchingConfig
	Activity ActivityConfig
	Mediator MediatorConfig
	MQTT     MQTTConfig
	Webhook  WebhookConfig
	Evidence EvidenceConfig
}

type HubConfig struct {
	QueueSize    int           `envconfig:"HUB_QUEUE_SIZE" default:"8"`
	OfflineGrace time.Duration `envconfig:"HUB_OFFLINE_GRACE" default:"5s"`
}

type PipelineConfig struct {
	FrameDeadline time.Duration `envconfig:"FRAME_DEADLINE" default:"2s"`
	ProcessEveryN int           `envconfig:"PROCESS_EVERY_N" default:"5"`
}

type MatchingConfig struct {
	MatchThreshold  float64       `envconfig:"MATCH_THRESHOLD" default:"0.4"`
	IoUThreshold    float64       `envconfig:"IOU_THRESHOLD" default:"0.3"`
	TrackGrace      time.Duration `envconfig:"TRACK_GRACE" default:"3s"`
	PoseWindow      int           `envconfig:"POSE_WINDOW" default:"30"`
	ConfidenceFloor float64       `envconfig:"CONFIDENCE_FLOOR" default:"0.45"`
}

type ActivityConfig struct {
	RuleFloor float64 `envconfig:"RULE_FLOOR" default:"0.5"`
	// SequenceProvider selects the temporal classifier: none, pose or tflite.
	SequenceProvider string   `envconfig:"SEQUENCE_PROVIDER" default:"pose"`
	SequenceModel    string   `envconfig:"SEQUENCE_MODEL"`
	SequenceLabels   []string `envconfig:"SEQUENCE_LABELS" default:"normal,fighting,running,falling"`
}

type MediatorConfig struct {
	AttendanceDedup time.Duration `envconfig:"ATTENDANCE_DEDUP" default:"10s"`
	AlertCooldown   time.Duration `envconfig:"ALERT_COOLDOWN" default:"5s"`
	// QuietLabels never raise alerts.
	QuietLabels []string `envconfig:"ALERT_QUIET_LABELS"`
}

type MQTTConfig struct {
	Broker   string `envconfig:"MQTT_BROKER"`
	ClientID string `envconfig:"MQTT_CLIENT_ID" default:"vigia"`
	Username string `envconfig:"MQTT_USERNAME"`
	Password string `envconfig:"MQTT_PASSWORD"`
	Topic    string `envconfig:"MQTT_TOPIC" default:"vigia"`
}

type WebhookConfig struct {
	URL    string `envconfig:"WEBHOOK_URL"`
	Secret string `envconfig:"WEBHOOK_SECRET"`
}

type EvidenceConfig struct {
	Dir    string `envconfig:"EVIDENCE_DIR" default:"./evidence"`
	Frames int    `envconfig:"EVIDENCE_FRAMES" default:"60"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Matching.MatchThreshold < -1 || c.Matching.MatchThreshold > 1 {
		return fmt.Errorf("MATCH_THRESHOLD must be within [-1, 1], got %v", c.Matching.MatchThreshold)
	}
	if c.Matching.IoUThreshold <= 0 || c.Matching.IoUThreshold > 1 {
		return fmt.Errorf("IOU_THRESHOLD must be within (0, 1], got %v", c.Matching.IoUThreshold)
	}
	if c.Matching.PoseWindow < 1 {
		return fmt.Errorf("POSE_WINDOW must be positive, got %d", c.Matching.PoseWindow)
	}
	if c.Activity.SequenceProvider == "tflite" && c.Activity.SequenceModel == "" {
		return fmt.Errorf("SEQUENCE_MODEL is required when SEQUENCE_PROVIDER is tflite")
	}
	if c.Hub.QueueSize < 1 {
		return fmt.Errorf("HUB_QUEUE_SIZE must be positive, got %d", c.Hub.QueueSize)
	}
	if c.Pipeline.ProcessEveryN < 1 {
		return fmt.Errorf("PROCESS_EVERY_N must be positive, got %d", c.Pipeline.ProcessEveryN)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
