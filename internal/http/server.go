// Package http exposes the thin CRUD and progress API over the engine.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"gyebu/internal/cache"
	"gyebu/internal/core"
	"gyebu/internal/log"
	"gyebu/internal/services"
	"gyebu/internal/storage"
)

// ProgressReader computes a plan's current progress.
type ProgressReader interface {
	Progress(ctx context.Context, planID int64, now time.Time) (core.Progress, error)
}

// Ports into the service and storage layers.
type (
	// TransactionRecorder records and removes transactions.
	TransactionRecorder interface {
		RecordTransaction(ctx context.Context, planID int64, input services.TransactionInput) (int64, error)
		DeleteTransaction(ctx context.Context, planID, txID int64) error
	}

	// PlanWriter persists plans and their goals.
	PlanWriter interface {
		CreatePlan(ctx context.Context, p storage.CreatePlanParams) (int64, error)
		UpsertBudgetGoal(ctx context.Context, planID int64, category string, limitMinor int64) error
		UpsertSavingsGoal(ctx context.Context, planID int64, id, name string, targetMinor int64) error
	}

	// PlanReader reads a plan and its goals, used by the goals endpoint to
	// resolve the plan currency and to skip no-op goal saves.
	PlanReader interface {
		GetPlan(ctx context.Context, id int64) (storage.PlanRecord, error)
		GetBudgetGoals(ctx context.Context, planID int64) ([]storage.BudgetGoalRecord, error)
	}
)

type Server struct {
	http.Server
	progress  ProgressReader
	recorder  TransactionRecorder
	planStore PlanWriter
	plans     PlanReader

	rateLimiter   *rateLimiter
	progressCache *cache.LRUCache[ProgressResponse]

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// Writes invalidate the cache explicitly; the TTL only bounds staleness
// across period rollovers.
const progressCacheTTL = 30 * time.Second

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, progress ProgressReader, recorder TransactionRecorder, planStore PlanWriter, plans PlanReader) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		progress:         progress,
		recorder:         recorder,
		planStore:        planStore,
		plans:            plans,
		rateLimiter:      newRateLimiter(),
		progressCache:    cache.NewLRUCache[ProgressResponse](100, progressCacheTTL),
		stopCacheCleanup: make(chan struct{}),
	}

	go s.startCacheCleanup()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /plans", s.withMiddleware(s.handleCreatePlan))
	mux.HandleFunc("PUT /plans/{id}/goals", s.withMiddleware(s.handleUpsertGoals))
	mux.HandleFunc("GET /plans/{id}/progress", s.withMiddleware(s.handleProgress))
	mux.HandleFunc("POST /plans/{id}/transactions", s.withMiddleware(s.handleCreateTransaction))
	mux.HandleFunc("DELETE /plans/{id}/transactions/{txID}", s.withMiddleware(s.handleDeleteTransaction))

	return s
}

func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if cleaned := s.progressCache.CleanExpired(); cleaned > 0 {
				slog.Debug("Progress cache cleanup completed", "entries_removed", cleaned)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.stopCacheCleanup != nil {
			close(s.stopCacheCleanup)
		}
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withMiddleware adds security headers, per-IP rate limiting on writes,
// and request logging with a generated request ID.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldClientIP, clientIP)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				log.FieldClientIP, clientIP, log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "Request completed",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rw.statusCode,
			log.FieldDuration, time.Since(start).Milliseconds())
	}
}

type requestIDKey struct{}

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b)
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Simple in-memory rate limiter: up to 60 write requests per minute per IP.
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		if rl.stopCleanup != nil {
			close(rl.stopCleanup)
		}
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]
	if !exists {
		rl.clients[clientIP] = &clientInfo{lastRequest: now, requests: 1}
		return true
	}

	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	client.requests++
	client.lastRequest = now
	return client.requests <= 60
}
