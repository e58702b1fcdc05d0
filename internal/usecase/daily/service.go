package daily

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-standup-bot/internal/domain"
	"tg-standup-bot/internal/infra/metrics"
	"tg-standup-bot/internal/usecase/report"
)

const (
	reminderText    = "Коллеги, ждём дейли-отчёты!"
	tagSuffix       = "не забудьте про дейли-отчёт!"
	stepGuardTTL    = 24 * time.Hour
	tickInterval    = time.Minute
	persistDeadline = 5 * time.Second
)

// Service — дневной оркестратор: на каждом минутном тике решает, какой шаг
// пора выполнить, и доводит его до конца вместе с записью состояния.
// Все шаги тика выполняются последовательно; следующий тик не начинается,
// пока не завершён текущий.
type Service struct {
	calendar  domain.WorkdayCalendar
	collector *report.Collector
	directory domain.MemberDirectory
	gateway   domain.ChannelGateway
	states    domain.StateStore
	published domain.PublishedRepo
	guard     domain.StepGuard
	events    domain.EventPublisher
	order     domain.RoleOrder
	sched     schedule
	loc       *time.Location

	reportChatID    int64
	aggregateChatID int64

	log zerolog.Logger
}

// Deps — зависимости оркестратора. Guard и Events необязательны: без них
// поведение деградирует до принятого at-least-once и без аудита.
type Deps struct {
	Calendar  domain.WorkdayCalendar
	Collector *report.Collector
	Directory domain.MemberDirectory
	Gateway   domain.ChannelGateway
	States    domain.StateStore
	Published domain.PublishedRepo
	Guard     domain.StepGuard
	Events    domain.EventPublisher
	Order     domain.RoleOrder

	ReportChatID    int64
	AggregateChatID int64
	Times           Times
	Location        *time.Location
	Log             zerolog.Logger
}

// NewService создаёт оркестратор. Ошибка возможна только из-за
// неразбираемых времён шагов — это конфигурация, а не рантайм.
func NewService(deps Deps) (*Service, error) {
	sched, err := parseTimes(deps.Times)
	if err != nil {
		return nil, err
	}
	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		calendar:        deps.Calendar,
		collector:       deps.Collector,
		directory:       deps.Directory,
		gateway:         deps.Gateway,
		states:          deps.States,
		published:       deps.Published,
		guard:           deps.Guard,
		events:          deps.Events,
		order:           deps.Order,
		sched:           sched,
		loc:             loc,
		reportChatID:    deps.ReportChatID,
		aggregateChatID: deps.AggregateChatID,
		log:             deps.Log,
	}, nil
}

// Run крутит один таймлайн с минутным тиком до отмены контекста.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := s.Tick(ctx, now); err != nil {
				metrics.TickErrors.Inc()
				s.log.Error().Err(err).Msg("daily: тик завершился ошибкой")
			}
		}
	}
}

// Tick выполняет один проход планировщика для момента now.
func (s *Service) Tick(ctx context.Context, now time.Time) error {
	now = now.In(s.loc)
	if !s.calendar.IsWorkDay(now) {
		return nil
	}

	today := now.Format("2006-01-02")
	state, outcome, err := s.states.Load()
	if err != nil {
		s.log.Warn().Err(err).Msg("daily: состояние не прочитано, начинаем со свежей записи")
		state = domain.NewSchedulerState(today)
	}
	if outcome == domain.StateCorrupt {
		s.log.Warn().Msg("daily: запись состояния не разобрана, сброшена на дефолт")
	}
	if state.IsStale(today) {
		state = domain.NewSchedulerState(today)
		if err := s.persist(state); err != nil {
			return fmt.Errorf("сохранение свежей записи дня: %w", err)
		}
	}

	for _, st := range planSteps(now, state, s.sched) {
		switch st {
		case stepReminder:
			s.fireReminder(ctx, &state)
		case stepRoleTag:
			s.fireRoleTag(ctx, now, &state)
		case stepFirstPublish:
			s.fireFirstPublish(ctx, now, &state)
		case stepUpdateAggregate:
			s.updateAggregate(ctx, now, &state)
		}
	}
	return nil
}

// fireReminder рассылает утреннее напоминание в отчётный чат.
// Без настроенного чата отправка пропускается, но флаг всё равно ставится:
// шаг дня считается отработанным.
func (s *Service) fireReminder(ctx context.Context, state *domain.SchedulerState) {
	if s.reportChatID != 0 {
		err := s.once(ctx, stepKey(state.Date, "reminder"), func() error {
			_, err := s.gateway.Send(ctx, s.reportChatID, reminderText)
			return err
		})
		if err != nil {
			s.log.Error().Err(err).Msg("daily: напоминание не отправлено")
			return
		}
	}
	state.ReminderFired = true
	if err := s.persist(*state); err != nil {
		s.log.Error().Err(err).Msg("daily: флаг напоминания не сохранён")
		return
	}
	metrics.IncStepFired("reminder")
	s.emit(ctx, domain.StepEventReminder, *state, 0)
}

// fireRoleTag упоминает допущенных участников, от которых ещё нет отчёта.
func (s *Service) fireRoleTag(ctx context.Context, now time.Time, state *domain.SchedulerState) {
	if s.reportChatID == 0 {
		state.RoleTagFired = true
		if err := s.persist(*state); err != nil {
			s.log.Error().Err(err).Msg("daily: флаг тегирования не сохранён")
		}
		return
	}

	_, reported, err := s.collector.Collect(ctx, s.reportChatID, startOfDay(now), now)
	if err != nil {
		s.log.Error().Err(err).Msg("daily: сбор отчётов перед тегированием не удался")
		return
	}
	members, err := s.directory.ListMembers(ctx, s.reportChatID)
	if err != nil {
		s.log.Error().Err(err).Msg("daily: ростер не прочитан")
		return
	}

	var mentions []string
	for _, member := range members {
		if member.IsBot {
			continue
		}
		if _, ok := reported[member.ID]; ok {
			continue
		}
		if _, eligible := s.order.Resolve(member.Roles); !eligible {
			continue
		}
		mentions = append(mentions, member.Mention())
	}

	if len(mentions) > 0 {
		err := s.once(ctx, stepKey(state.Date, "role_tag"), func() error {
			_, err := s.gateway.Send(ctx, s.reportChatID, strings.Join(mentions, " ")+" "+tagSuffix)
			return err
		})
		if err != nil {
			s.log.Error().Err(err).Msg("daily: тегирование не отправлено")
			return
		}
	}

	state.RoleTagFired = true
	if err := s.persist(*state); err != nil {
		s.log.Error().Err(err).Msg("daily: флаг тегирования не сохранён")
		return
	}
	metrics.IncStepFired("role_tag")
	s.emit(ctx, domain.StepEventRoleTag, *state, 0)
}

// fireFirstPublish публикует первый агрегат дня и запоминает его идентификатор.
func (s *Service) fireFirstPublish(ctx context.Context, now time.Time, state *domain.SchedulerState) {
	if s.aggregateChatID == 0 {
		return
	}
	content, err := s.buildContent(ctx, now)
	if err != nil {
		s.log.Error().Err(err).Msg("daily: агрегат не собран")
		return
	}

	key := stepKey(state.Date, "first_publish")
	var messageID int64
	err = s.once(ctx, key, func() error {
		id, sendErr := s.gateway.Send(ctx, s.aggregateChatID, content)
		if sendErr != nil {
			return sendErr
		}
		messageID = id
		s.remember(ctx, key+":message", strconv.FormatInt(id, 10))
		s.recordPublished(ctx, id, content)
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Msg("daily: первая публикация не удалась")
		return
	}
	if messageID == 0 {
		// Отметка подавила повторную отправку после сбоя: перенимаем
		// идентификатор, записанный при исходной отправке.
		messageID = s.recall(ctx, key+":message")
	}

	state.PublishedMessageID = messageID
	state.FirstPublishFired = true
	if err := s.persist(*state); err != nil {
		s.log.Error().Err(err).Msg("daily: флаг первой публикации не сохранён")
		return
	}
	metrics.IncStepFired("first_publish")
	s.emit(ctx, domain.StepEventFirstPublish, *state, messageID)
}

// updateAggregate перестраивает агрегат и правит опубликованное сообщение.
// Совпадающий текст не трогаем; исчезнувшее сообщение переиздаём с заменой
// идентификатора; отсутствие идентификатора — путь восстановления после
// пропущенной первой публикации.
func (s *Service) updateAggregate(ctx context.Context, now time.Time, state *domain.SchedulerState) {
	if s.aggregateChatID == 0 {
		return
	}
	content, err := s.buildContent(ctx, now)
	if err != nil {
		s.log.Error().Err(err).Msg("daily: агрегат не собран")
		return
	}

	messageID := state.PublishedMessageID
	if messageID == 0 {
		s.republish(ctx, state, content, true)
		return
	}

	previous, err := s.published.GetPublished(ctx, s.aggregateChatID, messageID)
	switch {
	case errors.Is(err, domain.ErrMessageNotFound):
		s.republish(ctx, state, content, false)
		return
	case err != nil:
		s.log.Error().Err(err).Msg("daily: опубликованный агрегат не прочитан")
		return
	}
	if previous == content {
		return
	}

	if err := s.gateway.Edit(ctx, s.aggregateChatID, messageID, content); err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			s.republish(ctx, state, content, false)
			return
		}
		s.log.Error().Err(err).Msg("daily: правка агрегата не удалась")
		return
	}
	s.recordPublished(ctx, messageID, content)
	metrics.IncAggregateUpdated("edit")
	s.emit(ctx, domain.StepEventAggregateUpdated, *state, messageID)
}

// republish отправляет агрегат заново и перенимает новый идентификатор.
// markFirst помечает первую публикацию отработанной, когда она была пропущена.
func (s *Service) republish(ctx context.Context, state *domain.SchedulerState, content string, markFirst bool) {
	id, err := s.gateway.Send(ctx, s.aggregateChatID, content)
	if err != nil {
		s.log.Error().Err(err).Msg("daily: переиздание агрегата не удалось")
		return
	}
	s.recordPublished(ctx, id, content)
	state.PublishedMessageID = id
	if markFirst {
		state.FirstPublishFired = true
	}
	if err := s.persist(*state); err != nil {
		s.log.Error().Err(err).Msg("daily: идентификатор агрегата не сохранён")
		return
	}
	metrics.IncAggregateUpdated("republish")
	s.emit(ctx, domain.StepEventAggregateUpdated, *state, id)
}

func (s *Service) buildContent(ctx context.Context, now time.Time) (string, error) {
	entries, _, err := s.collector.Collect(ctx, s.reportChatID, startOfDay(now), now)
	if err != nil {
		return "", fmt.Errorf("сбор отчётов: %w", err)
	}
	metrics.ReportsCollected.Set(float64(len(entries)))
	return report.BuildAggregate(now, entries), nil
}

func (s *Service) recordPublished(ctx context.Context, messageID int64, content string) {
	if err := s.published.SavePublished(ctx, s.aggregateChatID, messageID, content); err != nil {
		s.log.Warn().Err(err).Int64("message", messageID).Msg("daily: содержимое публикации не записано")
	}
}

func (s *Service) persist(state domain.SchedulerState) error {
	return s.states.Save(state)
}

// once ставит упреждающую отметку перед внешним побочным эффектом.
// Без настроенного guard сразу выполняет действие (принятый at-least-once).
func (s *Service) once(ctx context.Context, key string, fn func() error) error {
	if s.guard == nil {
		return fn()
	}
	return s.guard.Once(ctx, key, stepGuardTTL, fn)
}

func (s *Service) remember(ctx context.Context, key, value string) {
	if s.guard == nil {
		return
	}
	if err := s.guard.Remember(ctx, key, value, stepGuardTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("daily: результат шага не записан в guard")
	}
}

func (s *Service) recall(ctx context.Context, key string) int64 {
	if s.guard == nil {
		return 0
	}
	value, ok, err := s.guard.Recall(ctx, key)
	if err != nil || !ok {
		return 0
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func (s *Service) emit(ctx context.Context, kind domain.StepEventKind, state domain.SchedulerState, messageID int64) {
	if s.events == nil {
		return
	}
	event := domain.StepEvent{
		ID:         uuid.NewString(),
		Kind:       kind,
		Date:       state.Date,
		MessageID:  messageID,
		OccurredAt: time.Now().UTC(),
	}
	publishCtx, cancel := context.WithTimeout(ctx, persistDeadline)
	defer cancel()
	if err := s.events.Publish(publishCtx, event); err != nil {
		s.log.Warn().Err(err).Str("kind", string(kind)).Msg("daily: событие шага не опубликовано")
	}
}

func stepKey(date, name string) string {
	return "daily:step:" + date + ":" + name
}

func startOfDay(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
