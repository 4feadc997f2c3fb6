package main

import (
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// config is the demo's runtime configuration, sourced from (in order
// of increasing precedence) built-in defaults, a taskcoredemo.yaml in
// the working directory, and TASKCOREDEMO_-prefixed environment
// variables, layered with viper since this demo has more than a
// couple of tunables.
type config struct {
	Workers       int
	Strategy      string
	DefaultTimeout time.Duration
	CacheDir      string
	ReportDir     string
	BoltIndexPath string
	MetricsAddr   string
}

func loadConfig() (config, error) {
	v := viper.New()
	v.SetConfigName("taskcoredemo")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("TASKCOREDEMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("workers", runtime.GOMAXPROCS(0))
	v.SetDefault("strategy", "priority_graph")
	v.SetDefault("default_timeout", 30*time.Second)
	v.SetDefault("cache_dir", "./data/cache")
	v.SetDefault("report_dir", "./data/reports")
	v.SetDefault("bolt_index_path", "./data/reports/index.bolt")
	v.SetDefault("metrics_addr", ":9090")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return config{}, err
		}
	}

	return config{
		Workers:        v.GetInt("workers"),
		Strategy:       v.GetString("strategy"),
		DefaultTimeout: v.GetDuration("default_timeout"),
		CacheDir:       v.GetString("cache_dir"),
		ReportDir:      v.GetString("report_dir"),
		BoltIndexPath:  v.GetString("bolt_index_path"),
		MetricsAddr:    v.GetString("metrics_addr"),
	}, nil
}
