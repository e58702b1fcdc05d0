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

	"tg-standup-bot/internal/adapters/bot"
	"tg-standup-bot/internal/adapters/repo"
	"tg-standup-bot/internal/adapters/state"
	"tg-standup-bot/internal/domain"
	"tg-standup-bot/internal/infra/config"
	"tg-standup-bot/internal/infra/db"
	httpinfra "tg-standup-bot/internal/infra/http"
	"tg-standup-bot/internal/infra/log"
	"tg-standup-bot/internal/infra/metrics"
	"tg-standup-bot/internal/usecase/roster"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("gateway: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("gateway: не удалось создать бота")
	}

	rosterService := roster.NewService(repoAdapter, domain.RoleOrder(cfg.Report.RoleOrder))
	states := state.NewFileStore(cfg.StateFile)
	h := bot.NewHandler(botAPI, logger, rosterService, repoAdapter, states, cfg.Chats.ReportID)

	if cfg.Telegram.WebhookURL != "" {
		wh, err := tgbotapi.NewWebhook(cfg.Telegram.WebhookURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("gateway: некорректный webhook URL")
		}
		if _, err := botAPI.Request(wh); err != nil {
			logger.Fatal().Err(err).Msg("gateway: вебхук не зарегистрирован")
		}
	}

	server := httpinfra.NewServer(logger)
	server.Router.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		logger.Info().Msg("gateway: запущен")
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("gateway: HTTP сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("gateway: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

var _ domain.MessageRepo = (*repo.Postgres)(nil)
var _ domain.MemberDirectory = (*repo.Postgres)(nil)
var _ domain.PublishedRepo = (*repo.Postgres)(nil)
