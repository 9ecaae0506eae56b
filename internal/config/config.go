package config

import (
	"flag"
	"os"
	"slices"
	"strconv"

	"github.com/joho/godotenv"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// Config holds every runtime setting of the dashboard.
type Config struct {
	Listen string `yaml:"listen"`

	Model     ModelConfig     `yaml:"model"`
	Storage   StorageConfig   `yaml:"storage"`
	Session   SessionConfig   `yaml:"session"`
	Crowd     CrowdConfig     `yaml:"crowd"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Log       LogConfig       `yaml:"log"`

	MapsKey string `yaml:"maps_key"`
}

type ModelConfig struct {
	Path           string  `yaml:"path"`
	Labels         string  `yaml:"labels"`
	PostProcessing string  `yaml:"post_processing"` // yolo or ssd
	ScoreThreshold float32 `yaml:"score_threshold"`
	NMSThreshold   float32 `yaml:"nms_threshold"`
	Threads        int     `yaml:"threads"`
	EdgeTPU        bool    `yaml:"edgetpu"`
	FrameStride    int     `yaml:"frame_stride"` // run the model on every Nth video frame
}

type StorageConfig struct {
	Database      string `yaml:"database"`
	MediaDir      string `yaml:"media_dir"`
	StaticDir     string `yaml:"static_dir"`
	MaxUploadSize int64  `yaml:"max_upload_size"`
}

type SessionConfig struct {
	Name   string `yaml:"name"`
	Secret string `yaml:"secret"`
	MaxAge int    `yaml:"max_age"` // seconds
}

type CrowdConfig struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

type BootstrapConfig struct {
	AdminUser     string `yaml:"admin_user"`
	AdminPassword string `yaml:"admin_password"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

func Default() *Config {
	return &Config{
		Listen: ":8080",
		Model: ModelConfig{
			Path:           "models/spots.tflite",
			Labels:         "models/spots.names",
			PostProcessing: "yolo",
			ScoreThreshold: 0.3,
			NMSThreshold:   0.45,
			Threads:        4,
			FrameStride:    5,
		},
		Storage: StorageConfig{
			Database:      "database/users.db",
			MediaDir:      "media",
			StaticDir:     "static",
			MaxUploadSize: 50 << 20,
		},
		Session: SessionConfig{
			Name:   "spotdetect",
			MaxAge: 12 * 60 * 60,
		},
		Crowd: CrowdConfig{Min: 60, Max: 100},
		Log: LogConfig{
			Level:      "info",
			File:       "logs/spotdetect.log",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 7,
			Compress:   true,
		},
	}
}

// Load builds the configuration from defaults, .env, environment, an optional
// YAML file and finally command line flags, each layer overriding the previous.
func Load(args []string) (*Config, error) {
	cfg := Default()

	if env := os.Getenv("RUN_TIME_ENV"); env == "dev" || env == "" {
		// a missing .env is fine outside of development
		_ = godotenv.Load()
	}
	cfg.applyEnv()

	fs := flag.NewFlagSet("spotdetect", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config file")
	listen := fs.String("listen", "", "listen address")
	modelPath := fs.String("model", "", "path to model file")
	labelPath := fs.String("label", "", "path to label file")
	dbPath := fs.String("db", "", "path to sqlite database")
	edgetpu := fs.Bool("edgetpu", false, "use the first EdgeTPU device when available")
	if err := fs.Parse(args); err != nil {
		return nil, xerrors.Errorf("parse flags: %w", err)
	}

	if *configPath != "" {
		if err := cfg.loadFile(*configPath); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = *listen
		case "model":
			cfg.Model.Path = *modelPath
		case "label":
			cfg.Model.Labels = *labelPath
		case "db":
			cfg.Storage.Database = *dbPath
		case "edgetpu":
			cfg.Model.EdgeTPU = *edgetpu
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return xerrors.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return xerrors.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.Listen, "LISTEN")
	if port := os.Getenv("PORT"); port != "" {
		c.Listen = ":" + port
	}
	setString(&c.Model.Path, "MODEL_PATH")
	setString(&c.Model.Labels, "LABEL_PATH")
	setString(&c.Model.PostProcessing, "POST_PROCESSING")
	setFloat(&c.Model.ScoreThreshold, "SCORE_THRESHOLD")
	setFloat(&c.Model.NMSThreshold, "NMS_THRESHOLD")
	setInt(&c.Model.Threads, "MODEL_THREADS")
	setBool(&c.Model.EdgeTPU, "EDGETPU")
	setInt(&c.Model.FrameStride, "FRAME_STRIDE")
	setString(&c.Storage.Database, "DB_PATH")
	setString(&c.Storage.MediaDir, "MEDIA_DIR")
	setString(&c.Storage.StaticDir, "STATIC_DIR")
	if v, err := strconv.ParseInt(os.Getenv("MAX_UPLOAD_SIZE"), 10, 64); err == nil {
		c.Storage.MaxUploadSize = v
	}
	setString(&c.Session.Secret, "SESSION_SECRET")
	setInt(&c.Session.MaxAge, "SESSION_MAX_AGE")
	setInt(&c.Crowd.Min, "CROWD_MIN")
	setInt(&c.Crowd.Max, "CROWD_MAX")
	setString(&c.Bootstrap.AdminUser, "ADMIN_USER")
	setString(&c.Bootstrap.AdminPassword, "ADMIN_PASSWORD")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.File, "LOG_FILE")
	setString(&c.MapsKey, "MAPS_KEY")
}

// placeholderSecrets are the values shipped in example files.
var placeholderSecrets = []string{
	"change-me-change-me",
	"replace-with-a-long-random-secret",
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Listen == "":
		return xerrors.New("listen address is empty")
	case c.Model.ScoreThreshold <= 0 || c.Model.ScoreThreshold > 1:
		return xerrors.Errorf("score threshold %v out of range (0,1]", c.Model.ScoreThreshold)
	case c.Model.NMSThreshold <= 0 || c.Model.NMSThreshold > 1:
		return xerrors.Errorf("nms threshold %v out of range (0,1]", c.Model.NMSThreshold)
	case c.Model.Threads < 1:
		return xerrors.Errorf("model threads must be >= 1, got %d", c.Model.Threads)
	case c.Model.FrameStride < 1:
		return xerrors.Errorf("frame stride must be >= 1, got %d", c.Model.FrameStride)
	case c.Model.PostProcessing != "yolo" && c.Model.PostProcessing != "ssd":
		return xerrors.Errorf("unknown post processing %q", c.Model.PostProcessing)
	case c.Crowd.Min < 0 || c.Crowd.Max > 100 || c.Crowd.Min > c.Crowd.Max:
		return xerrors.Errorf("crowd range [%d,%d] invalid", c.Crowd.Min, c.Crowd.Max)
	case c.Session.Secret == "":
		return xerrors.New("session secret is not set (SESSION_SECRET)")
	case slices.Contains(placeholderSecrets, c.Session.Secret):
		return xerrors.New("session secret is still the example value")
	case len(c.Session.Secret) < 16:
		return xerrors.New("session secret must be at least 16 bytes")
	case c.Storage.MaxUploadSize <= 0:
		return xerrors.New("max upload size must be positive")
	case c.Storage.Database == "":
		return xerrors.New("database path is empty")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		*dst = v
	}
}

func setFloat(dst *float32, key string) {
	if v, err := strconv.ParseFloat(os.Getenv(key), 32); err == nil {
		*dst = float32(v)
	}
}

func setBool(dst *bool, key string) {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		*dst = v
	}
}
