package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов. Читается один раз на старте;
// дальше значения не перечитываются и не мутируются.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Asia/Ho_Chi_Minh"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL"`
		APIID      int    `envconfig:"TG_API_ID"`
		APIHash    string `envconfig:"TG_API_HASH"`
	} `envconfig:""`

	MTProto struct {
		SessionFile string `envconfig:"MTPROTO_SESSION_FILE"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Chats struct {
		ReportID    int64 `envconfig:"REPORT_CHAT_ID"`
		AggregateID int64 `envconfig:"AGGREGATE_CHAT_ID"`
	} `envconfig:""`

	Report struct {
		RoleOrder      []string `envconfig:"REPORT_ROLE_ORDER"`
		AnchorSaturday string   `envconfig:"ANCHOR_WORK_SATURDAY" default:"2024-01-24"`
		FetchLimit     int      `envconfig:"HISTORY_FETCH_LIMIT" default:"500"`
	} `envconfig:""`

	Steps struct {
		ReminderTime     string `envconfig:"REMINDER_TIME" default:"08:30"`
		RoleTagTime      string `envconfig:"ROLE_TAG_TIME" default:"09:00"`
		FirstPublishTime string `envconfig:"FIRST_PUBLISH_TIME" default:"09:30"`
	} `envconfig:""`

	StateFile string `envconfig:"STATE_FILE" default:"bot_state.json"`

	Events struct {
		Exchange string `envconfig:"STEP_EVENTS_EXCHANGE" default:"daily_steps"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
