package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/vncsmyrnk/tally/internal/core/domain"
)

type contextKey string

const PrincipalIDKey contextKey = "principal_id"

const ClientSignatureHeader = "X-Client-Signature"

var errInvalidToken = errors.New("invalid access token")

// Authenticator only verifies tokens issued elsewhere. A request without a
// token continues as anonymous.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := accessToken(r)
		if token == "" || len(a.secret) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		principalID, err := a.principal(token)
		if err != nil {
			http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), PrincipalIDKey, principalID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) principal(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", errInvalidToken
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errInvalidToken
	}
	return sub, nil
}

func accessToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if cookie, err := r.Cookie("access_token"); err == nil {
		return cookie.Value
	}
	return ""
}

// callerFromRequest expects chi's RealIP middleware to have run.
func callerFromRequest(r *http.Request) domain.Caller {
	if principalID, ok := r.Context().Value(PrincipalIDKey).(string); ok && principalID != "" {
		return domain.Caller{PrincipalID: principalID}
	}
	return anonymousCaller(r)
}

func anonymousCaller(r *http.Request) domain.Caller {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}

	signature := r.Header.Get(ClientSignatureHeader)
	if signature == "" {
		signature = r.UserAgent()
	}

	return domain.Caller{NetworkAddress: ip, ClientSignature: signature}
}

// RequestLogger is chi's access log written through zap.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				log.Info("request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
