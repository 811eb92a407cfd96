package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is resolved once at startup from the environment.
// Defaults match the deployed values on the pilot buildings.
type Config struct {
	// Pipeline
	CaptureInterval        time.Duration
	CameraFailureThreshold int
	CameraFailureResetH    int // advisory, kept for the admin surface
	RTSPTemplate           string
	LocalStorageDir        string
	WeightsFile            string

	// AI detectors
	LocalAIEndpoint string
	LocalAITimeout  time.Duration
	CloudAIEndpoint string
	CloudAITimeout  time.Duration
	AIAPIKey        string

	// Object store
	ObjectStoreEndpoint string

	// Radio fallback
	USRPDataFile        string
	USRPScriptPath      string
	USRPPadLead         int
	USRPPadTrail        int
	USRPTimeout         time.Duration
	USRPUHDImagesDir    string
	USRPLDPreload       string

	// Stores
	DatabaseURL      string
	CloudDatabaseURL string
	RedisAddr        string
	NATSURL          string

	Port string
}

func FromEnv() Config {
	return Config{
		CaptureInterval:        time.Duration(envInt("CAPTURE_INTERVAL_SEC", 30)) * time.Second,
		CameraFailureThreshold: envInt("CAMERA_FAILURE_THRESHOLD", 3),
		CameraFailureResetH:    envInt("CAMERA_FAILURE_RESET_HOURS", 24),
		RTSPTemplate:           os.Getenv("RTSP_TEMPLATE"),
		LocalStorageDir:        envStr("LOCAL_STORAGE_DIR", "data/frames"),
		WeightsFile:            envStr("WEIGHTS_FILE", "config/weights.yaml"),

		LocalAIEndpoint: os.Getenv("LOCAL_AI_ENDPOINT"),
		LocalAITimeout:  time.Duration(envInt("LOCAL_AI_TIMEOUT_MS", 15000)) * time.Millisecond,
		CloudAIEndpoint: os.Getenv("CLOUD_AI_ENDPOINT"),
		CloudAITimeout:  time.Duration(envInt("CLOUD_AI_TIMEOUT_MS", 25000)) * time.Millisecond,
		AIAPIKey:        os.Getenv("AI_API_KEY"),

		ObjectStoreEndpoint: os.Getenv("OBJECT_STORE_ENDPOINT"),

		USRPDataFile:     envStr("USRP_TX_DATA_FILE", "data/usrp/tx_data.txt"),
		USRPScriptPath:   envStr("USRP_SCRIPT_PATH", "/opt/usrp/transmit.py"),
		USRPPadLead:      envInt("USRP_PADDING_LENGTH", 80),
		USRPPadTrail:     envInt("USRP_PADDING_LENGTH_EXTRA", 33000),
		USRPTimeout:      time.Duration(envInt("USRP_TRANSMISSION_TIMEOUT_MS", 30000)) * time.Millisecond,
		USRPUHDImagesDir: os.Getenv("USRP_UHD_IMAGES_DIR"),
		USRPLDPreload:    os.Getenv("USRP_LD_PRELOAD"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		CloudDatabaseURL: os.Getenv("CLOUD_DATABASE_URL"),
		RedisAddr:        envStr("REDIS_ADDR", "localhost:6379"),
		NATSURL:          os.Getenv("NATS_URL"),

		Port: envStr("PORT", "8080"),
	}
}

// StreamURL resolves a camera's capture URL: explicit URL wins, otherwise
// the template with {cameraId} substituted.
func (c Config) StreamURL(explicit, cameraID string) string {
	if explicit != "" {
		return explicit
	}
	return strings.ReplaceAll(c.RTSPTemplate, "{cameraId}", cameraID)
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
