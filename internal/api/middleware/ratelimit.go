package middleware

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"greendrake/trueque/internal/config"
)

// clientLimiter stores the rate limiter for a specific client.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterMiddleware limits how fast one client can hit an endpoint.
// Authenticated clients are keyed by user id, anonymous ones by IP.
type RateLimiterMiddleware struct {
	clients map[string]*clientLimiter
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
}

// NewRateLimiterMiddleware creates a new RateLimiterMiddleware.
func NewRateLimiterMiddleware(cfg *config.Config) *RateLimiterMiddleware {
	return &RateLimiterMiddleware{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Limit(cfg.RateLimitRefillRate),
		burst:   cfg.RateLimitBucketSize,
		idleTTL: 30 * time.Minute,
	}
}

// getClientIdentifier prefers the authenticated user over the client IP.
func getClientIdentifier(c *gin.Context) string {
	if userID := UserID(c); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}

func (rm *RateLimiterMiddleware) getClientLimiter(identifier string) *rate.Limiter {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	cl, exists := rm.clients[identifier]
	if !exists {
		cl = &clientLimiter{limiter: rate.NewLimiter(rm.limit, rm.burst)}
		rm.clients[identifier] = cl
	}
	cl.lastSeen = time.Now()
	return cl.limiter
}

// RunCleanup periodically removes idle client entries until ctx is done.
func (rm *RateLimiterMiddleware) RunCleanup(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rm.cleanup(time.Now()); n > 0 {
				log.Printf("Rate limiter cleanup removed %d old client entries.", n)
			}
		}
	}
}

func (rm *RateLimiterMiddleware) cleanup(now time.Time) int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	count := 0
	for id, client := range rm.clients {
		if now.Sub(client.lastSeen) > rm.idleTTL {
			delete(rm.clients, id)
			count++
		}
	}
	return count
}

// Limit creates the Gin middleware handler. Run it after the auth middleware
// so clients are keyed by user.
func (rm *RateLimiterMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := getClientIdentifier(c)
		limiter := rm.getClientLimiter(clientKey)

		if !limiter.Allow() {
			log.Printf("Rate limit exceeded for client: %s on %s", clientKey, c.FullPath())
			retry := time.Second
			if rm.limit > 0 {
				retry = time.Duration(float64(time.Second) / float64(rm.limit))
			}
			c.Header("Retry-After", strconv.Itoa(int(retry.Seconds()+0.999)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded", "code": "rate_limited"})
			return
		}

		c.Next()
	}
}
