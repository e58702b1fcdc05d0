package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"tg-standup-bot/internal/adapters/mtproto"
	"tg-standup-bot/internal/adapters/repo"
	"tg-standup-bot/internal/adapters/state"
	"tg-standup-bot/internal/adapters/telegram"
	"tg-standup-bot/internal/domain"
	"tg-standup-bot/internal/infra/cache"
	"tg-standup-bot/internal/infra/config"
	"tg-standup-bot/internal/infra/db"
	"tg-standup-bot/internal/infra/events"
	httpinfra "tg-standup-bot/internal/infra/http"
	"tg-standup-bot/internal/infra/log"
	"tg-standup-bot/internal/infra/metrics"
	"tg-standup-bot/internal/usecase/daily"
	"tg-standup-bot/internal/usecase/report"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		logger.Warn().Err(err).Str("tz", cfg.TZ).Msg("scheduler: таймзона не загружена, используем локальную")
		loc = time.Local
	}

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	var guard domain.StepGuard
	if cfg.RedisAddr != "" {
		guard = cache.NewRedisGuard(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	} else {
		logger.Warn().Msg("scheduler: Redis не настроен, защита от дублей шагов отключена")
	}

	var publisher domain.EventPublisher
	if cfg.RabbitURL != "" {
		rabbit, err := events.NewRabbitPublisher(cfg.RabbitURL, cfg.Events.Exchange)
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler: нет подключения к RabbitMQ")
		}
		defer rabbit.Close()
		publisher = rabbit
	}

	calendar := domain.NewWorkdayCalendar(cfg.Report.AnchorSaturday, loc)
	if defaulted, reason := calendar.AnchorDefaulted(); defaulted {
		logger.Warn().Str("reason", reason).Msg("scheduler: якорная суббота не разобрана, все субботы считаются рабочими")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось создать бота")
	}
	gateway := telegram.NewGateway(botAPI, logger)

	order := domain.RoleOrder(cfg.Report.RoleOrder)
	collector := report.NewCollector(repoAdapter, repoAdapter, order, cfg.Report.FetchLimit)
	states := state.NewFileStore(cfg.StateFile)

	// Гейтвей мог лежать: добираем историю отчётного чата за сегодня.
	if cfg.Telegram.APIID != 0 && cfg.MTProto.SessionFile != "" {
		backfiller := mtproto.NewBackfiller(cfg.Telegram.APIID, cfg.Telegram.APIHash, cfg.Telegram.Token, cfg.MTProto.SessionFile, logger)
		now := time.Now().In(loc)
		since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		msgs, err := backfiller.Backfill(ctx, cfg.Chats.ReportID, since, cfg.Report.FetchLimit)
		if err != nil {
			logger.Error().Err(err).Msg("scheduler: история чата не догружена")
		} else if err := repoAdapter.SaveMessages(ctx, msgs); err != nil {
			logger.Error().Err(err).Msg("scheduler: догруженные сообщения не сохранены")
		}
	}

	svc, err := daily.NewService(daily.Deps{
		Calendar:        calendar,
		Collector:       collector,
		Directory:       repoAdapter,
		Gateway:         gateway,
		States:          states,
		Published:       repoAdapter,
		Guard:           guard,
		Events:          publisher,
		Order:           order,
		ReportChatID:    cfg.Chats.ReportID,
		AggregateChatID: cfg.Chats.AggregateID,
		Times: daily.Times{
			Reminder:     cfg.Steps.ReminderTime,
			RoleTag:      cfg.Steps.RoleTagTime,
			FirstPublish: cfg.Steps.FirstPublishTime,
		},
		Location: loc,
		Log:      logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: некорректные времена шагов")
	}

	server := httpinfra.NewServer(logger)
	server.Router.Get("/state", func(w http.ResponseWriter, r *http.Request) {
		st, outcome, err := states.Load()
		if err != nil || outcome != domain.StateLoaded {
			http.Error(w, "состояние недоступно", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	})
	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("scheduler: HTTP сервер остановлен")
		}
	}()

	logger.Info().Msg("scheduler: запущен")
	svc.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
