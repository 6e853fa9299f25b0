package infra

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kruger4712/MealPrep-sub003/middleware/ratelimit/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisWindowStore implementa domain.WindowStore sobre Redis.
//
// Cada chave vira um ZSET com o log da janela deslizante; o script Lua faz a
// sequência poda-conta-registra em uma ida só, o que garante a atomicidade
// entre instâncias do serviço. O timeout de chamada é curto e independente do
// deadline da requisição: o cancelamento do caller nunca entra no meio da
// operação atômica.
type RedisWindowStore struct {
	rdb           *redis.Client
	script        *redis.Script
	prefix        string
	callTimeout   time.Duration
	skewThreshold time.Duration
	clock         domain.Clock
	logger        *zap.Logger
}

type RedisWindowOption func(*RedisWindowStore)

func WithWindowPrefix(prefix string) RedisWindowOption {
	return func(s *RedisWindowStore) { s.prefix = prefix }
}

// WithCallTimeout limita cada ida ao Redis (dezenas de ms); estourar esse
// timeout conta como falha de store, não como rejeição.
func WithCallTimeout(d time.Duration) RedisWindowOption {
	return func(s *RedisWindowStore) { s.callTimeout = d }
}

func WithSkewThreshold(d time.Duration) RedisWindowOption {
	return func(s *RedisWindowStore) { s.skewThreshold = d }
}

func WithWindowClock(c domain.Clock) RedisWindowOption {
	return func(s *RedisWindowStore) { s.clock = c }
}

func WithWindowLogger(l *zap.Logger) RedisWindowOption {
	return func(s *RedisWindowStore) { s.logger = l }
}

func NewRedisWindowStore(rdb *redis.Client, opts ...RedisWindowOption) *RedisWindowStore {
	s := &RedisWindowStore{
		rdb:           rdb,
		script:        redis.NewScript(slidingWindowLua),
		prefix:        "admission:",
		callTimeout:   50 * time.Millisecond,
		skewThreshold: 2 * time.Second,
		clock:         domain.SystemClock(),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckAndRecord executa o script de janela deslizante para a chave.
func (s *RedisWindowStore) CheckAndRecord(ctx context.Context, key string, limit int64, window time.Duration, now time.Time) (domain.WindowResult, error) {
	if key == "" {
		return domain.WindowResult{}, domain.ErrEmptyKey
	}

	member := uuid.NewString()

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	values, err := s.script.Run(opCtx, s.rdb, []string{s.prefix + key}, limit, window.Microseconds(), member).Result()
	if err != nil {
		return domain.WindowResult{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	admitted, count, earliestMicros, nowMicros, err := parseWindowReply(values)
	if err != nil {
		return domain.WindowResult{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	res := domain.WindowResult{
		Admitted: admitted,
		Count:    count,
		StoreNow: time.Unix(0, nowMicros*int64(time.Microsecond)),
	}
	if admitted {
		res.Member = member
	}
	if earliestMicros > 0 {
		res.Earliest = time.Unix(0, earliestMicros*int64(time.Microsecond))
	}

	// Desvio de relógio entre o Redis e o processo local é só um aviso:
	// a decisão usa o tempo do store e não muda por causa do desvio.
	if skew := res.StoreNow.Sub(s.clock.Now()); skew > s.skewThreshold || skew < -s.skewThreshold {
		s.logger.Warn("clock skew between redis and local clock",
			zap.Duration("skew", skew),
			zap.Duration("threshold", s.skewThreshold))
	}

	return res, nil
}

// Remove desfaz um registro (rollback do short-circuit multi-regra).
func (s *RedisWindowStore) Remove(ctx context.Context, key, member string) error {
	if key == "" {
		return domain.ErrEmptyKey
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if err := s.rdb.ZRem(opCtx, s.prefix+key, member).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// opContext isola a operação do cancelamento do caller e aplica o timeout
// curto do store; incremento parcial nunca fica pendurado por desistência
// do cliente.
func (s *RedisWindowStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(context.WithoutCancel(ctx), s.callTimeout)
}

func parseWindowReply(values interface{}) (admitted bool, count, earliest, now int64, err error) {
	arr, ok := values.([]interface{})
	if !ok || len(arr) < 4 {
		return false, 0, 0, 0, fmt.Errorf("unexpected lua result: %v", values)
	}

	nums := make([]int64, 4)
	for i := 0; i < 4; i++ {
		nums[i], err = toInt64(arr[i])
		if err != nil {
			return false, 0, 0, 0, err
		}
	}
	return nums[0] == 1, nums[1], nums[2], nums[3], nil
}

func toInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, err
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unexpected lua value: %T", value)
	}
}
