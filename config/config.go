package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	EventsTopic   string   `yaml:"events_topic"`
	PricesTopic   string   `yaml:"prices_topic"`
	PricesGroupID string   `yaml:"prices_group_id"`
}

type Config struct {
	ListenAddr        string        `yaml:"listen_addr"`
	DataDir           string        `yaml:"data_dir"`
	Instruments       []string      `yaml:"instruments"`
	LogLevel          string        `yaml:"log_level"`
	BroadcastInterval string        `yaml:"broadcast_interval"`
	Kafka             KafkaConfig   `yaml:"kafka"`
	ParsedInterval    time.Duration `yaml:"-"`
}

// Load reads the YAML file, then overlays secrets from a sibling .env
// (KAFKA_BROKERS wins over the file when set).
func Load(filename string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(filepath.Dir(filename), ".env"))

	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "open config file")
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config file")
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8000"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if len(cfg.Instruments) == 0 {
		return nil, errors.New("config: at least one instrument is required")
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = []string{brokers}
	}

	cfg.ParsedInterval = 250 * time.Millisecond
	if cfg.BroadcastInterval != "" {
		d, err := time.ParseDuration(cfg.BroadcastInterval)
		if err != nil {
			return nil, errors.Wrap(err, "parse broadcast interval")
		}
		cfg.ParsedInterval = d
	}
	return &cfg, nil
}
