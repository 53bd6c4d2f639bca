package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/taji-labs/signing-service/pkg/auth"
	"github.com/taji-labs/signing-service/pkg/types"
)

const (
	requestIDHeader   = "X-Request-ID"
	requestIDKey      = "requestId"
	maxRequestIDLen   = 128
	authSubjectKey    = "authSubject"
	messageNotFound   = "Not found"
	messageNoMethod   = "Method not allowed"
	messageRateLimit  = "Too many requests"
	messageAuth       = "Unauthorized"
	messageBadBody    = "Invalid request body"
	messageBodyTooBig = "Request body too large"
	messageInternal   = "Internal server error"
)

// requestID keeps a caller supplied id when it is reasonable, otherwise assigns one.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// recovery turns a panic into the generic internal error response. The panic value is
// logged but never echoed to the caller.
func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				s.logger.Sugar().Errorw("Recovered from panic",
					"request_id", c.GetString(requestIDKey),
					"path", c.Request.URL.Path,
					"panic", recovered,
				)
				if !c.Writer.Written() {
					c.AbortWithStatusJSON(http.StatusInternalServerError, failure(messageInternal))
					return
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}

// accessLog records method, route, status and latency. Bodies are never read here.
func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := s.now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		if s.metrics != nil {
			s.metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		}

		s.logger.Sugar().Debugw("HTTP request",
			"request_id", c.GetString(requestIDKey),
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration", s.now().Sub(start),
		)
	}
}

// rateLimit applies one token bucket to all callers. Health and metrics are exempt.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		if !s.limiter.Allow() {
			if s.metrics != nil {
				s.metrics.RateLimited.Inc()
			}
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, failure(messageRateLimit))
			return
		}
		c.Next()
	}
}

// bearerAuth is a no-op unless a token verifier is configured.
func (s *Server) bearerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.verifier == nil {
			c.Next()
			return
		}

		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err == nil {
			var claims *auth.Claims
			claims, err = s.verifier.VerifyToken(c.Request.Context(), token)
			if err == nil {
				c.Set(authSubjectKey, claims.Subject)
				c.Next()
				return
			}
		}

		if s.metrics != nil {
			s.metrics.AuthFailures.Inc()
		}
		s.logger.Sugar().Infow("Rejected unauthenticated request",
			"request_id", c.GetString(requestIDKey),
			"path", c.Request.URL.Path,
			"error", err,
		)
		c.Header("WWW-Authenticate", `Bearer realm="`+types.ServiceName+`"`)
		c.AbortWithStatusJSON(http.StatusUnauthorized, failure(messageAuth))
	}
}

func (s *Server) bodyLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes)
		}
		c.Next()
	}
}

func failure(message string) types.SignTransactionResponse {
	return types.SignTransactionResponse{Success: false, Message: message}
}
