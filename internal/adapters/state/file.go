package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"tg-standup-bot/internal/domain"
)

// FileStore хранит запись планировщика в одном JSON-файле.
// Запись атомарная: сначала временный файл, затем rename, чтобы
// падение посреди записи не оставило обрезанный JSON.
type FileStore struct {
	path string
}

var _ domain.StateStore = (*FileStore)(nil)

// NewFileStore создаёт файловое хранилище состояния.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load читает состояние. Отсутствующий или нечитаемый файл не считается
// фатальной ошибкой: вызывающий получает явный исход и чистую запись.
func (s *FileStore) Load() (domain.SchedulerState, domain.StateLoadOutcome, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.SchedulerState{}, domain.StateMissing, nil
	}
	if err != nil {
		return domain.SchedulerState{}, domain.StateCorrupt, nil
	}
	var st domain.SchedulerState
	if err := json.Unmarshal(data, &st); err != nil {
		return domain.SchedulerState{}, domain.StateCorrupt, nil
	}
	return st, domain.StateLoaded, nil
}

// Save записывает состояние на диск.
func (s *FileStore) Save(st domain.SchedulerState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("сериализация состояния: %w", err)
	}
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("создание временного файла: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("запись состояния: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("сброс на диск: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("закрытие файла: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("замена файла состояния: %w", err)
	}
	return nil
}
