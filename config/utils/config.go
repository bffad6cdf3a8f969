// Package config provides utilities to load environment variables & set config structs, it includes app, logger, scheduler, tracker, report, http server, db, redis and mq sections.
package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// AppConfig contains every environment-driven knob of the daemon
type (
	AppConfig struct {
		App       *App       `mapstructure:"app"`
		Logger    *Logger    `mapstructure:"logger"`
		HTTP      *HTTP      `mapstructure:"http"`
		Scheduler *Scheduler `mapstructure:"scheduler"`
		Tracker   *Tracker   `mapstructure:"tracker"`
		Report    *Report    `mapstructure:"report"`
		DB        *DB        `mapstructure:"db"`
		Redis     *Redis     `mapstructure:"redis"`
		MQ        *MQ        `mapstructure:"mq"`
		Workers   []Worker   `mapstructure:"workers"`
	}

	// App contains the application identity variables
	App struct {
		Name  string `mapstructure:"name"`
		Env   string `mapstructure:"env"`
		Owner string `mapstructure:"owner"`
	}

	// Logger contains all the environment variables for the logger
	Logger struct {
		Level             string                `mapstructure:"level"`
		Development       bool                  `mapstructure:"development"`
		DisableStacktrace bool                  `mapstructure:"disableStacktrace"`
		Encoding          string                `mapstructure:"encoding"`
		EncoderConfig     zapcore.EncoderConfig `mapstructure:"encoderConfig"`
	}

	// HTTP contains the API server variables
	HTTP struct {
		Port string `mapstructure:"port"`
	}

	// Scheduler tunes the dispatch loop
	Scheduler struct {
		MaxConcurrentTasks   int           `mapstructure:"maxConcurrentTasks"`
		DefaultMaxAttempts   int           `mapstructure:"defaultMaxAttempts"`
		DefaultWorkerMaxLoad int           `mapstructure:"defaultWorkerMaxLoad"`
		TickInterval         time.Duration `mapstructure:"tickInterval"`
		TaskTimeout          time.Duration `mapstructure:"taskTimeout"`
		RetryDelay           time.Duration `mapstructure:"retryDelay"`
	}

	// Tracker bounds the completed-task archive
	Tracker struct {
		ArchiveCapacity int `mapstructure:"archiveCapacity"`
		RecentActivity  int `mapstructure:"recentActivity"`
	}

	// Report holds the recommendation / health thresholds
	Report struct {
		SlowTask       time.Duration `mapstructure:"slowTask"`
		ResourceCalls  int           `mapstructure:"resourceCalls"`
		ErrorRatePct   float64       `mapstructure:"errorRatePct"`
		SlowAverage    time.Duration `mapstructure:"slowAverage"`
		SuccessRatePct float64       `mapstructure:"successRatePct"`
	}

	// DB contains all the environment variables for the archive database
	DB struct {
		Enabled    bool   `mapstructure:"enabled"`
		Connection string `mapstructure:"connection"`
		Host       string `mapstructure:"host"`
		Port       string `mapstructure:"port"`
		User       string `mapstructure:"user"`
		Password   string `mapstructure:"password"`
		Name       string `mapstructure:"name"`
	}

	// Redis contains all the environment variables for the worker directory
	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	}

	// MQ contains the RabbitMQ executor variables
	MQ struct {
		Enabled bool   `mapstructure:"enabled"`
		User    string `mapstructure:"user"`
		Pass    string `mapstructure:"pass"`
		Host    string `mapstructure:"host"`
		Port    string `mapstructure:"port"`
		VHost   string `mapstructure:"vhost"`
	}

	// Worker is a statically configured executor registered at boot
	Worker struct {
		ID           string   `mapstructure:"id"`
		Capabilities []string `mapstructure:"capabilities"`
		MaxLoad      int      `mapstructure:"maxLoad"`
	}
)

// addZapEncoderConfig fills encoder config with zapcore types
func addZapEncoderConfig(cfg *zapcore.EncoderConfig) {
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.SecondsDurationEncoder
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	cfg.EncodeName = func(s string, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString("[" + s + "]")
	}
}

// New creates a new AppConfig instance
func New() *AppConfig {
	// Set up viper to read the config.yaml file
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/secrets/")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("env")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read the config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Fatalf("config file not found: %v", err)
		} else {
			log.Fatalf("error reading config file: %v", err)
		}
	}

	// Bind the app.name key to the APP_NAME environment variable
	if err := viper.BindEnv("app.name", "APP_NAME"); err != nil {
		log.Fatalf("error finding APP_NAME env variable")
	}

	// Bind DB variables
	viper.BindEnv("db.host", "PG_HOST")
	viper.BindEnv("db.port", "PG_PORT")
	viper.BindEnv("db.user", "PG_USER")
	viper.BindEnv("db.password", "PG_PASS")
	viper.BindEnv("db.name", "PG_DB")

	// Bind Redis variables
	viper.BindEnv("redis.addr", "REDIS_ADDR")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Bind MQ variables
	viper.BindEnv("mq.user", "MQ_USER")
	viper.BindEnv("mq.pass", "MQ_PASS")
	viper.BindEnv("mq.host", "MQ_HOST")
	viper.BindEnv("mq.port", "MQ_PORT")

	// Create an instance of AppConfig
	var config *AppConfig
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("unable to decode into struct: %v", err)
	}
	addZapEncoderConfig(&config.Logger.EncoderConfig)

	return config
}
