package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/region23/pnplive/pkg/logger"
	"github.com/region23/pnplive/pkg/metrics"
)

// RateLimiter ограничивает частоту запросов по ключу (IP или ID пользователя)
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	log      *logger.Logger

	cleanupInterval time.Duration
	idleTimeout     time.Duration
	lastAccess      map[string]time.Time
	done            chan struct{}
	closeOnce       sync.Once
}

// NewRateLimiter создает limiter на requests запросов за duration с burst, равным requests
func NewRateLimiter(requests int, duration time.Duration, log *logger.Logger) *RateLimiter {
	if requests <= 0 {
		requests = 1
	}

	rl := &RateLimiter{
		limiters:        make(map[string]*rate.Limiter),
		lastAccess:      make(map[string]time.Time),
		limit:           rate.Every(duration / time.Duration(requests)),
		burst:           requests,
		log:             log,
		cleanupInterval: 5 * time.Minute,
		idleTimeout:     10 * time.Minute,
		done:            make(chan struct{}),
	}

	go rl.cleanupRoutine()

	return rl
}

// GetLimiter возвращает limiter для ключа, создавая его при первом обращении
func (rl *RateLimiter) GetLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[key] = limiter
	}

	rl.lastAccess[key] = time.Now()
	return limiter
}

// Allow проверяет, разрешен ли запрос для данного ключа
func (rl *RateLimiter) Allow(key string) bool {
	return rl.GetLimiter(key).Allow()
}

// Len возвращает число отслеживаемых ключей
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now().Add(-rl.idleTimeout))
		case <-rl.done:
			return
		}
	}
}

// cleanup удаляет limiters, к которым не обращались с cutoff
func (rl *RateLimiter) cleanup(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	var cleaned int
	for key, lastAccessed := range rl.lastAccess {
		if lastAccessed.Before(cutoff) {
			delete(rl.limiters, key)
			delete(rl.lastAccess, key)
			cleaned++
		}
	}

	if cleaned > 0 {
		rl.log.Debug("Cleaned up rate limiters",
			logger.Int("cleaned_count", cleaned),
			logger.Int("remaining_count", len(rl.limiters)))
	}
}

// Close останавливает cleanup routine
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() { close(rl.done) })
}

// HTTPRateLimitMiddleware ограничивает запросы по IP клиента
func HTTPRateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := getRealIP(r)

			if !limiter.Allow(key) {
				limiter.log.Warn("Rate limit exceeded",
					logger.String("ip", key),
					logger.String("path", r.URL.Path))
				metrics.RecordError("http", "rate_limited")

				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// TelegramRateLimiter ограничивает частоту действий пользователей бота
type TelegramRateLimiter struct {
	userLimiter   *RateLimiter
	globalLimiter *rate.Limiter
	log           *logger.Logger
}

// NewTelegramRateLimiter создает limiter с лимитом на пользователя в минуту и общим лимитом в секунду
func NewTelegramRateLimiter(userRequestsPerMinute, globalRequestsPerSecond int, log *logger.Logger) *TelegramRateLimiter {
	return &TelegramRateLimiter{
		userLimiter:   NewRateLimiter(userRequestsPerMinute, time.Minute, log),
		globalLimiter: rate.NewLimiter(rate.Limit(globalRequestsPerSecond), globalRequestsPerSecond),
		log:           log,
	}
}

// AllowUser проверяет, может ли пользователь отправить запрос
func (trl *TelegramRateLimiter) AllowUser(chatID int64) bool {
	if !trl.globalLimiter.Allow() {
		trl.log.Warn("Global rate limit exceeded", logger.Int64("chat_id", chatID))
		return false
	}

	if !trl.userLimiter.Allow(fmt.Sprintf("user_%d", chatID)) {
		trl.log.Warn("User rate limit exceeded", logger.Int64("chat_id", chatID))
		return false
	}

	return true
}

// Close закрывает все ресурсы
func (trl *TelegramRateLimiter) Close() {
	trl.userLimiter.Close()
}

// getRealIP извлекает реальный IP адрес из запроса
func getRealIP(r *http.Request) string {
	headers := []string{
		"CF-Connecting-IP",
		"X-Forwarded-For",
		"X-Real-IP",
	}

	for _, header := range headers {
		ip := r.Header.Get(header)
		if ip == "" {
			continue
		}
		// X-Forwarded-For может содержать несколько IP через запятую
		if header == "X-Forwarded-For" {
			return strings.TrimSpace(strings.Split(ip, ",")[0])
		}
		return ip
	}

	if i := strings.LastIndex(r.RemoteAddr, ":"); i > 0 {
		return r.RemoteAddr[:i]
	}
	return r.RemoteAddr
}
