package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Broadcast modes.
const (
	BroadcastResult = "result"
	BroadcastFrame  = "frame"
	BroadcastBoth   = "both"
)

// Inference backends.
const (
	InferenceOpenCV = "opencv"
	InferenceRemote = "remote"
)

type Config struct {
	Port                    int
	Password                string
	LogDirectory            string
	DatabasePath            string
	CaptureDirectory        string
	MaxCaptureDirectorySize int64 // GB
	RetentionInterval       time.Duration

	SerialPort        string
	SerialBaudRate    int
	SerialReadTimeout time.Duration
	SerialChunkSize   int
	SerialAutoConnect bool

	MaxFrameSize     int           // bytes, 0 = unlimited
	FrameIdleTimeout time.Duration // 0 = never expire a partial frame
	FrameInterval    time.Duration // minimum gap between processed frames

	BroadcastMode         string
	BroadcastWriteTimeout time.Duration

	InferenceBackend   string
	ModelPath          string
	ConfigPath         string
	ClassNamesPath     string
	DetectionThreshold float64
	InferenceURL       string
	InferenceTimeout   time.Duration

	MQTT MQTTConfig
	S3   S3Config
}

type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
}

type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
	Region          string
}

// Enabled reports whether a broker was configured.
func (c MQTTConfig) Enabled() bool { return c.Broker != "" }

// Enabled reports whether a bucket was configured.
func (c S3Config) Enabled() bool { return c.BucketName != "" }

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	return &Config{
		Port:                    v.GetInt("PORT"),
		Password:                v.GetString("PASSWORD"),
		LogDirectory:            v.GetString("LOG_DIR"),
		DatabasePath:            v.GetString("DB_PATH"),
		CaptureDirectory:        v.GetString("CAPTURE_DIR"),
		MaxCaptureDirectorySize: v.GetInt64("MAX_CAPTURE_DIRECTORY_SIZE"),
		RetentionInterval:       v.GetDuration("RETENTION_INTERVAL"),

		SerialPort:        v.GetString("SERIAL_PORT"),
		SerialBaudRate:    v.GetInt("SERIAL_BAUD_RATE"),
		SerialReadTimeout: v.GetDuration("SERIAL_READ_TIMEOUT"),
		SerialChunkSize:   v.GetInt("SERIAL_CHUNK_SIZE"),
		SerialAutoConnect: v.GetBool("SERIAL_AUTO_CONNECT"),

		MaxFrameSize:     v.GetInt("MAX_FRAME_SIZE"),
		FrameIdleTimeout: v.GetDuration("FRAME_IDLE_TIMEOUT"),
		FrameInterval:    v.GetDuration("FRAME_INTERVAL"),

		BroadcastMode:         strings.ToLower(v.GetString("BROADCAST_MODE")),
		BroadcastWriteTimeout: v.GetDuration("BROADCAST_WRITE_TIMEOUT"),

		InferenceBackend:   strings.ToLower(v.GetString("INFERENCE_BACKEND")),
		ModelPath:          v.GetString("MODEL_PATH"),
		ConfigPath:         v.GetString("CONFIG_PATH"),
		ClassNamesPath:     v.GetString("CLASS_NAMES_PATH"),
		DetectionThreshold: v.GetFloat64("DETECTION_THRESHOLD"),
		InferenceURL:       v.GetString("INFERENCE_URL"),
		InferenceTimeout:   v.GetDuration("INFERENCE_TIMEOUT"),

		MQTT: MQTTConfig{
			Broker:   v.GetString("MQTT_BROKER"),
			Topic:    v.GetString("MQTT_TOPIC"),
			ClientID: v.GetString("MQTT_CLIENT_ID"),
		},
		S3: S3Config{
			Endpoint:        v.GetString("S3_ENDPOINT"),
			AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
			UseSSL:          v.GetBool("S3_USE_SSL"),
			BucketName:      v.GetString("S3_BUCKET_NAME"),
			Region:          v.GetString("S3_REGION"),
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 8080)
	v.SetDefault("PASSWORD", "armory")
	v.SetDefault("LOG_DIR", filepath.Join(".", "logs"))
	v.SetDefault("DB_PATH", filepath.Join(".", "data", "tiny.db"))
	v.SetDefault("CAPTURE_DIR", filepath.Join(".", "data", "temp"))
	v.SetDefault("MAX_CAPTURE_DIRECTORY_SIZE", 4)
	v.SetDefault("RETENTION_INTERVAL", "5m")

	v.SetDefault("SERIAL_PORT", "/dev/ttyUSB0")
	v.SetDefault("SERIAL_BAUD_RATE", 9600)
	v.SetDefault("SERIAL_READ_TIMEOUT", "5s")
	v.SetDefault("SERIAL_CHUNK_SIZE", 4096)
	v.SetDefault("SERIAL_AUTO_CONNECT", false)

	v.SetDefault("MAX_FRAME_SIZE", 10*1024*1024) // 10MB
	v.SetDefault("FRAME_IDLE_TIMEOUT", "30s")
	v.SetDefault("FRAME_INTERVAL", "1s")

	v.SetDefault("BROADCAST_MODE", BroadcastResult)
	v.SetDefault("BROADCAST_WRITE_TIMEOUT", "5s")

	v.SetDefault("INFERENCE_BACKEND", InferenceOpenCV)
	v.SetDefault("MODEL_PATH", filepath.Join(".", "data", "ai", "frozen_inference_graph.pb"))
	v.SetDefault("CONFIG_PATH", filepath.Join(".", "data", "ai", "ssd_mobilenet_v1_coco_2017_11_17.pbtxt"))
	v.SetDefault("CLASS_NAMES_PATH", filepath.Join(".", "data", "ai", "data.yaml"))
	v.SetDefault("DETECTION_THRESHOLD", 0.5)
	v.SetDefault("INFERENCE_URL", "http://localhost:8000/ai/predict")
	v.SetDefault("INFERENCE_TIMEOUT", "30s")

	v.SetDefault("MQTT_BROKER", "")
	v.SetDefault("MQTT_TOPIC", "armory/predictions")
	v.SetDefault("MQTT_CLIENT_ID", "armory")

	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_ACCESS_KEY_ID", "")
	v.SetDefault("S3_SECRET_ACCESS_KEY", "")
	v.SetDefault("S3_USE_SSL", false)
	v.SetDefault("S3_BUCKET_NAME", "")
	v.SetDefault("S3_REGION", "us-east-1")
}
