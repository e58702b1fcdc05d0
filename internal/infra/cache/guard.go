package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tg-standup-bot/internal/domain"
)

// RedisGuard реализует страховку шагов поверх Redis. Маркер ставится до
// побочного эффекта, чтобы падение между отправкой и записью состояния
// не привело к дублю после рестарта.
type RedisGuard struct {
	client *redis.Client
}

var _ domain.StepGuard = (*RedisGuard)(nil)

// NewRedisGuard создаёт страховку шагов.
func NewRedisGuard(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client}
}

// Once выполняет fn, только если маркер по ключу ещё не установлен.
func (g *RedisGuard) Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	acquired, err := g.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return fmt.Errorf("установка маркера шага: %w", err)
	}
	if !acquired {
		return nil
	}
	if err := fn(); err != nil {
		// Шаг не выполнился, маркер снимаем, чтобы следующий тик повторил попытку.
		_ = g.client.Del(ctx, key).Err()
		return err
	}
	return nil
}

// Remember сохраняет значение по ключу.
func (g *RedisGuard) Remember(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := g.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("сохранение значения шага: %w", err)
	}
	return nil
}

// Recall возвращает сохранённое значение и признак его наличия.
func (g *RedisGuard) Recall(ctx context.Context, key string) (string, bool, error) {
	value, err := g.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("чтение значения шага: %w", err)
	}
	return value, true, nil
}
