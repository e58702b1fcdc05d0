package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	StepsFiredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "daily_steps_fired_total",
		Help: "Количество выполненных шагов дневного цикла",
	}, []string{"step"})

	AggregateUpdatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "daily_aggregate_updates_total",
		Help: "Количество обновлений сводного сообщения",
	}, []string{"mode"})

	TickErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "daily_tick_errors_total",
		Help: "Ошибки при обработке минутного тика",
	})

	ReportsCollected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "daily_reports_collected",
		Help: "Число отчётов в последней собранной сводке",
	})

	BackfillMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backfill_messages_total",
		Help: "Сообщения, догруженные из истории чата",
	})

	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		StepsFiredTotal,
		AggregateUpdatesTotal,
		TickErrors,
		ReportsCollected,
		BackfillMessagesTotal,
		BotSendErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncStepFired увеличивает счётчик выполненных шагов.
func IncStepFired(step string) {
	StepsFiredTotal.WithLabelValues(step).Inc()
}

// IncAggregateUpdated увеличивает счётчик обновлений сводки.
func IncAggregateUpdated(mode string) {
	AggregateUpdatesTotal.WithLabelValues(mode).Inc()
}
