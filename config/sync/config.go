package config

import "github.com/ilyakaznacheev/cleanenv"

type Config struct {
	Port        int    `env:"PORT" env-default:"8090"`
	DatabaseURL string `env:"DATABASE_URL"`

	Recall       RecallConfig   `env-prefix:"RECALL_"`
	CalendarFeed CalendarConfig `env-prefix:"CALENDAR_"`

	SyncWindowDays  int  `env:"SYNC_WINDOW_DAYS" env-default:"7"`
	AutoJoinEnabled bool `env:"AUTO_JOIN_ENABLED" env-default:"true"`
	JoinLeadMinutes int  `env:"JOIN_LEAD_MINUTES" env-default:"10"`

	PollActiveSeconds int `env:"POLL_ACTIVE_SECONDS" env-default:"10"`
	PollIdleSeconds   int `env:"POLL_IDLE_SECONDS" env-default:"30"`
}

type RecallConfig struct {
	APIURL string `env:"API_URL" env-default:"https://us-east-1.recall.ai"`
	APIKey string `env:"API_KEY"`
}

type CalendarConfig struct {
	FeedURL string `env:"FEED_URL"`
}

func MustLoad() *Config {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		panic("failed to read environment variables: " + err.Error())
	}
	return &cfg
}
