package daily

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-standup-bot/internal/domain"
	"tg-standup-bot/internal/usecase/report"
)

const (
	testReportChat    = int64(77)
	testAggregateChat = int64(88)
)

type sentMessage struct {
	ChatID int64
	Text   string
	ID     int64
}

type editedMessage struct {
	ChatID    int64
	MessageID int64
	Text      string
}

type memGateway struct {
	nextID  int64
	sent    []sentMessage
	edits   []editedMessage
	editErr error
}

func (g *memGateway) Send(_ context.Context, chatID int64, text string) (int64, error) {
	g.nextID++
	id := 100 + g.nextID
	g.sent = append(g.sent, sentMessage{ChatID: chatID, Text: text, ID: id})
	return id, nil
}

func (g *memGateway) Edit(_ context.Context, chatID, messageID int64, text string) error {
	if g.editErr != nil {
		return g.editErr
	}
	g.edits = append(g.edits, editedMessage{ChatID: chatID, MessageID: messageID, Text: text})
	return nil
}

type memState struct {
	state   domain.SchedulerState
	outcome domain.StateLoadOutcome
	saves   int
}

func (s *memState) Load() (domain.SchedulerState, domain.StateLoadOutcome, error) {
	return s.state, s.outcome, nil
}

func (s *memState) Save(state domain.SchedulerState) error {
	s.state = state
	s.outcome = domain.StateLoaded
	s.saves++
	return nil
}

type memPublished struct {
	data map[int64]string
}

func (p *memPublished) SavePublished(_ context.Context, _ int64, messageID int64, content string) error {
	p.data[messageID] = content
	return nil
}

func (p *memPublished) GetPublished(_ context.Context, _ int64, messageID int64) (string, error) {
	content, ok := p.data[messageID]
	if !ok {
		return "", domain.ErrMessageNotFound
	}
	return content, nil
}

type stubMessages struct {
	msgs []domain.ChannelMessage
}

func (s *stubMessages) SaveMessages(context.Context, []domain.ChannelMessage) error { return nil }
func (s *stubMessages) ListWindow(context.Context, int64, time.Time, time.Time, int) ([]domain.ChannelMessage, error) {
	return s.msgs, nil
}

type stubDirectory struct {
	members []domain.Member
}

func (s *stubDirectory) ListMembers(context.Context, int64) ([]domain.Member, error) {
	return s.members, nil
}

func (s *stubDirectory) GetMember(_ context.Context, _ int64, userID int64) (domain.Member, error) {
	for _, m := range s.members {
		if m.ID == userID {
			return m, nil
		}
	}
	return domain.Member{}, domain.ErrMemberNotFound
}

func (s *stubDirectory) UpsertMember(context.Context, int64, domain.Member) error { return nil }
func (s *stubDirectory) SetRoles(context.Context, int64, int64, []string) error   { return nil }

// suppressingGuard имитирует сработавшую ранее упреждающую отметку:
// действие не выполняется, но запомненный результат отдаётся.
type suppressingGuard struct {
	recalled map[string]string
}

func (suppressingGuard) Once(context.Context, string, time.Duration, func() error) error {
	return nil
}

func (g suppressingGuard) Remember(_ context.Context, key, value string, _ time.Duration) error {
	g.recalled[key] = value
	return nil
}

func (g suppressingGuard) Recall(_ context.Context, key string) (string, bool, error) {
	value, ok := g.recalled[key]
	return value, ok, nil
}

type fixture struct {
	gateway   *memGateway
	states    *memState
	published *memPublished
	messages  *stubMessages
	directory *stubDirectory
	svc       *Service
}

func newFixture(t *testing.T, guard domain.StepGuard) *fixture {
	t.Helper()
	f := &fixture{
		gateway:   &memGateway{},
		states:    &memState{outcome: domain.StateMissing},
		published: &memPublished{data: make(map[int64]string)},
		messages:  &stubMessages{},
		directory: &stubDirectory{members: []domain.Member{
			{ID: 1, Username: "huy", DisplayName: "Huy", Roles: []string{"dev"}},
			{ID: 2, Username: "lan", DisplayName: "Lan", Roles: []string{"tester"}},
		}},
	}
	order := domain.RoleOrder{"dev", "ba", "tester"}
	collector := report.NewCollector(f.messages, f.directory, order, 500)
	svc, err := NewService(Deps{
		Calendar:        domain.NewWorkdayCalendar("2025-01-04", time.UTC),
		Collector:       collector,
		Directory:       f.directory,
		Gateway:         f.gateway,
		States:          f.states,
		Published:       f.published,
		Guard:           guard,
		Order:           order,
		ReportChatID:    testReportChat,
		AggregateChatID: testAggregateChat,
		Times:           Times{Reminder: "08:30", RoleTag: "09:00", FirstPublish: "09:30"},
		Location:        time.UTC,
		Log:             zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("не удалось создать сервис: %v", err)
	}
	f.svc = svc
	return f
}

// Понедельник.
func at(hour, minute int) time.Time {
	return time.Date(2025, 5, 12, hour, minute, 0, 0, time.UTC)
}

func mustTick(t *testing.T, f *fixture, now time.Time) {
	t.Helper()
	if err := f.svc.Tick(context.Background(), now); err != nil {
		t.Fatalf("тик завершился ошибкой: %v", err)
	}
}

func TestTickSkipsNonWorkday(t *testing.T) {
	f := newFixture(t, nil)
	// Воскресенье.
	sunday := time.Date(2025, 5, 11, 8, 30, 0, 0, time.UTC)
	mustTick(t, f, sunday)
	if len(f.gateway.sent) != 0 || f.states.saves != 0 {
		t.Fatal("в нерабочий день не должно быть ни отправок, ни записей состояния")
	}
}

func TestReminderFiresExactlyOnce(t *testing.T) {
	f := newFixture(t, nil)
	mustTick(t, f, at(8, 30))
	mustTick(t, f, at(8, 30))
	if len(f.gateway.sent) != 1 {
		t.Fatalf("ожидали одно напоминание, получили %d", len(f.gateway.sent))
	}
	if f.gateway.sent[0].ChatID != testReportChat {
		t.Fatal("напоминание ушло не в отчётный чат")
	}
	if !f.states.state.ReminderFired {
		t.Fatal("флаг напоминания не установлен")
	}
}

func TestStaleStateReplacedBeforeSteps(t *testing.T) {
	f := newFixture(t, nil)
	f.states.state = domain.SchedulerState{
		Date:               "2025-05-11",
		ReminderFired:      true,
		RoleTagFired:       true,
		FirstPublishFired:  true,
		PublishedMessageID: 55,
	}
	f.states.outcome = domain.StateLoaded
	mustTick(t, f, at(8, 30))
	if f.states.state.Date != "2025-05-12" {
		t.Fatalf("ожидали запись нового дня, получили %s", f.states.state.Date)
	}
	if f.states.state.PublishedMessageID != 0 {
		t.Fatal("идентификатор вчерашнего агрегата должен быть сброшен")
	}
	// Свежие флаги — напоминание нового дня срабатывает.
	if len(f.gateway.sent) != 1 {
		t.Fatalf("ожидали напоминание нового дня, отправок: %d", len(f.gateway.sent))
	}
}

func TestRoleTagMentionsOnlyMissingEligible(t *testing.T) {
	f := newFixture(t, nil)
	f.directory.members = []domain.Member{
		{ID: 1, Username: "huy", DisplayName: "Huy", Roles: []string{"dev"}},
		{ID: 2, Username: "lan", DisplayName: "Lan", Roles: []string{"tester"}},
		{ID: 3, Username: "guest", DisplayName: "Guest", Roles: []string{"designer"}},
		{ID: 4, Username: "helper", DisplayName: "Helper", IsBot: true, Roles: []string{"dev"}},
	}
	f.messages.msgs = []domain.ChannelMessage{
		{ID: 10, AuthorID: 1, AuthorName: "Huy", Text: "12/5\n- done"},
	}
	mustTick(t, f, at(9, 0))
	if len(f.gateway.sent) != 1 {
		t.Fatalf("ожидали одно сообщение с тегами, получили %d", len(f.gateway.sent))
	}
	text := f.gateway.sent[0].Text
	if !strings.Contains(text, "@lan") {
		t.Fatalf("пропустивший отчёт участник не упомянут: %q", text)
	}
	for _, absent := range []string{"@huy", "@guest", "@helper"} {
		if strings.Contains(text, absent) {
			t.Fatalf("лишнее упоминание %s: %q", absent, text)
		}
	}
	if !f.states.state.RoleTagFired {
		t.Fatal("флаг тегирования не установлен")
	}
}

func TestRoleTagNoMissingStillSetsFlag(t *testing.T) {
	f := newFixture(t, nil)
	f.messages.msgs = []domain.ChannelMessage{
		{ID: 10, AuthorID: 1, AuthorName: "Huy", Text: "12/5\n- done"},
		{ID: 11, AuthorID: 2, AuthorName: "Lan", Text: "12/5\n- done too"},
	}
	mustTick(t, f, at(9, 0))
	if len(f.gateway.sent) != 0 {
		t.Fatal("при полном составе сообщение не отправляется")
	}
	if !f.states.state.RoleTagFired {
		t.Fatal("флаг тегирования должен быть установлен и без отправки")
	}
}

func TestFirstPublishStoresMessageID(t *testing.T) {
	f := newFixture(t, nil)
	f.messages.msgs = []domain.ChannelMessage{
		{ID: 10, AuthorID: 1, AuthorName: "Huy", Text: "12/5\n- done"},
	}
	mustTick(t, f, at(9, 30))
	if len(f.gateway.sent) != 1 {
		t.Fatalf("ожидали одну публикацию, получили %d", len(f.gateway.sent))
	}
	published := f.gateway.sent[0]
	if published.ChatID != testAggregateChat {
		t.Fatal("агрегат ушёл не в тот чат")
	}
	if !strings.Contains(published.Text, "Daily Report 12/05/2025") {
		t.Fatalf("нет заголовка дня: %q", published.Text)
	}
	if f.states.state.PublishedMessageID != published.ID {
		t.Fatal("идентификатор публикации не сохранён")
	}
	if !f.states.state.FirstPublishFired {
		t.Fatal("флаг первой публикации не установлен")
	}
	// Ветка обновления того же тика видит неизменённый текст и не правит.
	if len(f.gateway.edits) != 0 {
		t.Fatal("правка сразу после публикации не нужна")
	}
}

func TestFirstPublishIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	mustTick(t, f, at(9, 30))
	mustTick(t, f, at(9, 30))
	if len(f.gateway.sent) != 1 {
		t.Fatalf("повторный тик не должен публиковать заново, отправок: %d", len(f.gateway.sent))
	}
}

func TestFirstPublishSuppressedByGuardAdoptsRememberedID(t *testing.T) {
	// Сбой случился после отправки, но до записи флага: отметка guard уже
	// стоит, идентификатор сообщения записан при исходной отправке.
	guard := suppressingGuard{recalled: map[string]string{
		"daily:step:2025-05-12:first_publish:message": "555",
	}}
	f := newFixture(t, guard)
	f.published.data[555] = report.BuildAggregate(at(9, 30), nil)
	mustTick(t, f, at(9, 30))
	if len(f.gateway.sent) != 0 {
		t.Fatal("guard обязан подавить повторную отправку")
	}
	if !f.states.state.FirstPublishFired {
		t.Fatal("шаг должен быть помечен отработанным")
	}
	if f.states.state.PublishedMessageID != 555 {
		t.Fatalf("ожидали перенятый идентификатор 555, получили %d", f.states.state.PublishedMessageID)
	}
	if len(f.gateway.edits) != 0 {
		t.Fatal("текст не менялся, правка не нужна")
	}
}

func TestUpdateNoEditWhenContentUnchanged(t *testing.T) {
	f := newFixture(t, nil)
	f.messages.msgs = []domain.ChannelMessage{
		{ID: 10, AuthorID: 1, AuthorName: "Huy", Text: "12/5\n- done"},
	}
	mustTick(t, f, at(9, 30))
	mustTick(t, f, at(10, 0))
	if len(f.gateway.edits) != 0 {
		t.Fatal("неизменённый текст не должен приводить к правке")
	}
	if len(f.gateway.sent) != 1 {
		t.Fatal("повторная отправка не нужна")
	}
}

func TestUpdateEditsWhenContentChanged(t *testing.T) {
	f := newFixture(t, nil)
	f.messages.msgs = []domain.ChannelMessage{
		{ID: 10, AuthorID: 1, AuthorName: "Huy", Text: "12/5\n- done"},
	}
	mustTick(t, f, at(9, 30))
	f.messages.msgs = append(f.messages.msgs, domain.ChannelMessage{
		ID: 11, AuthorID: 2, AuthorName: "Lan", Text: "12/5\n- late report",
	})
	mustTick(t, f, at(10, 0))
	if len(f.gateway.edits) != 1 {
		t.Fatalf("ожидали одну правку, получили %d", len(f.gateway.edits))
	}
	edit := f.gateway.edits[0]
	if !strings.Contains(edit.Text, "Late report") {
		t.Fatalf("правка без нового отчёта: %q", edit.Text)
	}
	if f.published.data[edit.MessageID] != edit.Text {
		t.Fatal("записанное содержимое публикации не обновлено")
	}
}

func TestUpdateSkipsOffScheduleMinutes(t *testing.T) {
	f := newFixture(t, nil)
	f.states.state = domain.SchedulerState{
		Date:              "2025-05-12",
		ReminderFired:     true,
		RoleTagFired:      true,
		FirstPublishFired: true,
	}
	f.states.outcome = domain.StateLoaded
	mustTick(t, f, at(10, 15))
	if len(f.gateway.sent) != 0 || len(f.gateway.edits) != 0 {
		t.Fatal("вне минут :00/:30 обновление не выполняется")
	}
}

func TestUpdateRepublishesWhenMessageGone(t *testing.T) {
	f := newFixture(t, nil)
	f.states.state = domain.SchedulerState{
		Date:               "2025-05-12",
		ReminderFired:      true,
		RoleTagFired:       true,
		FirstPublishFired:  true,
		PublishedMessageID: 999,
	}
	f.states.outcome = domain.StateLoaded
	// Хранилище публикаций пусто: сообщение «исчезло».
	mustTick(t, f, at(10, 0))
	if len(f.gateway.sent) != 1 {
		t.Fatalf("ожидали переиздание, отправок: %d", len(f.gateway.sent))
	}
	if f.states.state.PublishedMessageID == 999 {
		t.Fatal("идентификатор должен смениться на новый")
	}
}

func TestUpdateRepublishesOnEditNotFound(t *testing.T) {
	f := newFixture(t, nil)
	f.states.state = domain.SchedulerState{
		Date:               "2025-05-12",
		ReminderFired:      true,
		RoleTagFired:       true,
		FirstPublishFired:  true,
		PublishedMessageID: 500,
	}
	f.states.outcome = domain.StateLoaded
	f.published.data[500] = "устаревший текст"
	f.gateway.editErr = domain.ErrMessageNotFound
	mustTick(t, f, at(10, 0))
	if len(f.gateway.sent) != 1 {
		t.Fatalf("ожидали переиздание после not-found, отправок: %d", len(f.gateway.sent))
	}
	if f.states.state.PublishedMessageID == 500 {
		t.Fatal("идентификатор должен быть заменён")
	}
}

func TestUpdateRecoversMissedFirstPublish(t *testing.T) {
	f := newFixture(t, nil)
	f.states.state = domain.SchedulerState{
		Date:          "2025-05-12",
		ReminderFired: true,
		RoleTagFired:  true,
	}
	f.states.outcome = domain.StateLoaded
	mustTick(t, f, at(10, 0))
	if len(f.gateway.sent) != 1 {
		t.Fatalf("ожидали восстановительную публикацию, отправок: %d", len(f.gateway.sent))
	}
	if !f.states.state.FirstPublishFired {
		t.Fatal("пропущенная первая публикация должна быть помечена отработанной")
	}
	if f.states.state.PublishedMessageID == 0 {
		t.Fatal("идентификатор восстановительной публикации не сохранён")
	}
}

func TestPlanStepsExactMinutes(t *testing.T) {
	sched := schedule{reminder: 8*60 + 30, roleTag: 9 * 60, firstPublish: 9*60 + 30}
	fresh := domain.NewSchedulerState("2025-05-12")

	if steps := planSteps(at(8, 29), fresh, sched); len(steps) != 0 {
		t.Fatalf("до времени шага действий нет, получили %v", steps)
	}
	if steps := planSteps(at(8, 30), fresh, sched); len(steps) != 1 || steps[0] != stepReminder {
		t.Fatalf("ожидали напоминание, получили %v", steps)
	}
	// Пропущенное напоминание не догоняется в 09:00 — там своя ветка.
	if steps := planSteps(at(9, 0), fresh, sched); len(steps) != 1 || steps[0] != stepRoleTag {
		t.Fatalf("ожидали тегирование, получили %v", steps)
	}
	steps := planSteps(at(9, 30), fresh, sched)
	if len(steps) != 2 || steps[0] != stepFirstPublish || steps[1] != stepUpdateAggregate {
		t.Fatalf("в 09:30 публикация и следом обновление, получили %v", steps)
	}

	done := fresh
	done.ReminderFired = true
	done.RoleTagFired = true
	done.FirstPublishFired = true
	if steps := planSteps(at(10, 0), done, sched); len(steps) != 1 || steps[0] != stepUpdateAggregate {
		t.Fatalf("после шагов остаются только обновления, получили %v", steps)
	}
	if steps := planSteps(at(10, 17), done, sched); len(steps) != 0 {
		t.Fatalf("вне :00/:30 действий нет, получили %v", steps)
	}
	if steps := planSteps(at(9, 0), done, sched); len(steps) != 0 {
		t.Fatalf("обновлений до первой публикации нет, получили %v", steps)
	}
}
