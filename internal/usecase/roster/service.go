package roster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"tg-standup-bot/internal/domain"
)

// ErrUnknownRole возвращается при попытке назначить роль вне настроенного списка.
var ErrUnknownRole = errors.New("роль не входит в настроенный список")

// ErrNoRoles возвращается, когда список назначаемых ролей пуст.
var ErrNoRoles = errors.New("не указано ни одной роли")

// Service управляет ростером участников отчётного чата.
// Telegram не хранит ролей участников, поэтому справочник ведёт бот.
type Service struct {
	directory domain.MemberDirectory
	order     domain.RoleOrder
}

// NewService создаёт сервис ростера.
func NewService(directory domain.MemberDirectory, order domain.RoleOrder) *Service {
	return &Service{directory: directory, order: order}
}

// Register добавляет участника в ростер или обновляет его данные.
func (s *Service) Register(ctx context.Context, chatID int64, member domain.Member) error {
	if member.ID == 0 {
		return errors.New("участник без идентификатора")
	}
	if err := s.directory.UpsertMember(ctx, chatID, member); err != nil {
		return fmt.Errorf("запись участника: %w", err)
	}
	return nil
}

// AssignRoles валидирует роли по настроенному порядку и назначает их участнику.
func (s *Service) AssignRoles(ctx context.Context, chatID, userID int64, roles []string) error {
	cleaned := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		trimmed := strings.TrimSpace(role)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		cleaned = append(cleaned, trimmed)
	}
	if len(cleaned) == 0 {
		return ErrNoRoles
	}
	for _, role := range cleaned {
		if !s.knownRole(role) {
			return fmt.Errorf("%w: %s", ErrUnknownRole, role)
		}
	}
	if err := s.directory.SetRoles(ctx, chatID, userID, cleaned); err != nil {
		return fmt.Errorf("назначение ролей: %w", err)
	}
	return nil
}

// MemberOverview — участник ростера с вычисленным приоритетом.
type MemberOverview struct {
	Member   domain.Member
	Rank     int
	Eligible bool
}

// Overview возвращает участников в порядке приоритета ролей; участники без
// допущенной роли идут в конце. Боты в обзор не попадают.
func (s *Service) Overview(ctx context.Context, chatID int64) ([]MemberOverview, error) {
	members, err := s.directory.ListMembers(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("чтение ростера: %w", err)
	}
	overview := make([]MemberOverview, 0, len(members))
	for _, member := range members {
		if member.IsBot {
			continue
		}
		rank, eligible := s.order.Resolve(member.Roles)
		overview = append(overview, MemberOverview{Member: member, Rank: rank, Eligible: eligible})
	}
	sort.SliceStable(overview, func(i, j int) bool {
		if overview[i].Rank != overview[j].Rank {
			return overview[i].Rank < overview[j].Rank
		}
		return overview[i].Member.DisplayName < overview[j].Member.DisplayName
	})
	return overview, nil
}

func (s *Service) knownRole(role string) bool {
	for _, id := range s.order {
		if id == role {
			return true
		}
	}
	return false
}
