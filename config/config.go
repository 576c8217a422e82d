package config

import (
	"log"

	"github.com/spf13/viper"
)

// AppConfig holds the application-level configuration
type AppConfig struct {
	Endpoints        []string `mapstructure:"endpoints"`
	DownloadDir      string   `mapstructure:"download_dir"`
	WorkDir          string   `mapstructure:"work_dir"`
	RegistryPath     string   `mapstructure:"registry_path"`
	HistoryPath      string   `mapstructure:"history_path"`
	ChunkSize        int64    `mapstructure:"chunk_size"`
	BatchSize        int      `mapstructure:"batch_size"`
	FetchConcurrency int      `mapstructure:"fetch_concurrency"`
	IDMin            int      `mapstructure:"id_min"`
	IDMax            int      `mapstructure:"id_max"`
	RetryAttempts    int      `mapstructure:"retry_attempts"`
	RetryBaseMs      int      `mapstructure:"retry_base_ms"`
	RetryMaxMs       int      `mapstructure:"retry_max_ms"`
	HTTPTimeoutSec   int      `mapstructure:"http_timeout_sec"`
}

var Config *AppConfig

func LoadConfig(path string) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(path)
	viper.AutomaticEnv()

	viper.SetDefault("endpoints", []string{})
	viper.SetDefault("download_dir", "./downloads")
	viper.SetDefault("work_dir", "./work")
	viper.SetDefault("registry_path", "./registry.json")
	viper.SetDefault("history_path", "./data/history")
	viper.SetDefault("chunk_size", 24_000_000)
	viper.SetDefault("batch_size", 4)
	viper.SetDefault("fetch_concurrency", 0)
	viper.SetDefault("id_min", 1)
	viper.SetDefault("id_max", 9999)
	viper.SetDefault("retry_attempts", 3)
	viper.SetDefault("retry_base_ms", 500)
	viper.SetDefault("retry_max_ms", 30_000)
	viper.SetDefault("http_timeout_sec", 60)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("could not read config file, using defaults: %v", err)
	}

	var appConfig AppConfig
	if err := viper.Unmarshal(&appConfig); err != nil {
		log.Fatalf("unable to decode config into struct: %v", err)
	}

	Config = &appConfig
}
