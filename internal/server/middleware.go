package server

import (
	"net/http"
	"time"

	"github.com/region23/pnplive/pkg/logger"
)

// maxBodyBytes ограничивает размер тела входящих webhook
const maxBodyBytes = 1 << 20

// loggingMiddleware логирует HTTP запросы
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriterWrapper{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		s.logger.Info("HTTP request completed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status_code", wrapped.statusCode),
			logger.Duration("duration", time.Since(start)))
	})
}

// securityHeadersMiddleware добавляет заголовки безопасности
func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next.ServeHTTP(w, r)
	})
}

// requestValidationMiddleware отсекает слишком большие запросы и POST без Content-Type
func (s *Server) requestValidationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > maxBodyBytes {
			s.logger.Warn("Request too large",
				logger.Int64("content_length", r.ContentLength),
				logger.String("remote_addr", r.RemoteAddr))
			http.Error(w, "Request too large", http.StatusRequestEntityTooLarge)
			return
		}

		if r.Method == http.MethodPost && r.Header.Get("Content-Type") == "" {
			s.logger.Warn("Missing Content-Type header",
				logger.String("path", r.URL.Path),
				logger.String("remote_addr", r.RemoteAddr))
			http.Error(w, "Content-Type header is required", http.StatusBadRequest)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// responseWriterWrapper оборачивает ResponseWriter для захвата status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader перехватывает status code
func (rw *responseWriterWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
