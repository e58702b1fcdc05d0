package domain

// RankIneligible — сентинельный приоритет для участников без подходящей роли.
// Гарантированно больше любого настроенного индекса.
const RankIneligible = 9999

// RoleOrder — упорядоченный список идентификаторов ролей.
// Позиция в списке задаёт приоритет: индекс 0 — наивысший.
// Конфигурируется один раз на старте и дальше только читается.
type RoleOrder []string

// Resolve возвращает минимальный индекс роли участника в списке и признак
// допуска. Участник без единой роли из списка невидим для всех шагов:
// его не напоминают, не тегируют и не учитывают в агрегате.
func (o RoleOrder) Resolve(memberRoles []string) (int, bool) {
	best := RankIneligible
	found := false
	for _, role := range memberRoles {
		for idx, id := range o {
			if id == role && idx < best {
				best = idx
				found = true
			}
		}
	}
	return best, found
}
