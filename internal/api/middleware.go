// Package api implements the maplab REST API using chi.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/felixge/httpsnoop"
	"github.com/golang-jwt/jwt/v5"

	"github.com/starford/maplab/internal/models"
)

// Participant headers honoured when JWT auth is disabled.
const (
	HeaderParticipantID       = "X-Participant-Id"
	HeaderParticipantName     = "X-Participant-Name"
	HeaderParticipantColor    = "X-Participant-Color"
	HeaderParticipantAvatar   = "X-Participant-Avatar"
	HeaderParticipantReadOnly = "X-Participant-Read-Only"
)

// AnonymousID is the participant id used when no identity is supplied in
// disabled mode.
const AnonymousID = "anonymous"

// Claims are the JWT claims describing a participant. The subject is the
// user id.
type Claims struct {
	Name     string `json:"name"`
	Color    string `json:"color,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	ReadOnly bool   `json:"read_only,omitempty"`
	jwt.RegisteredClaims
}

type participantKey struct{}

// WithParticipant returns a copy of ctx carrying p.
func WithParticipant(ctx context.Context, p models.Participant) context.Context {
	return context.WithValue(ctx, participantKey{}, p)
}

// ParticipantFrom returns the participant attached by ParticipantMiddleware.
func ParticipantFrom(ctx context.Context) (models.Participant, bool) {
	p, ok := ctx.Value(participantKey{}).(models.Participant)
	return p, ok
}

// ParticipantMiddleware resolves the acting participant of every request.
// If jwtEnabled is false, identity is taken from the X-Participant-* headers
// (or the "user" query parameter) without verification.
// If jwtEnabled is true, requests must carry an HS256 token signed with
// secret, either as "Authorization: Bearer <token>" or as the access_token
// query parameter for EventSource and WebSocket clients.
func ParticipantMiddleware(jwtEnabled bool, secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !jwtEnabled {
				next.ServeHTTP(w, r.WithContext(WithParticipant(r.Context(), headerParticipant(r))))
				return
			}
			p, err := tokenParticipant(bearerToken(r), secret)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithParticipant(r.Context(), p)))
		})
	}
}

func headerParticipant(r *http.Request) models.Participant {
	id := r.Header.Get(HeaderParticipantID)
	if id == "" {
		id = r.URL.Query().Get("user")
	}
	if id == "" {
		id = AnonymousID
	}
	name := r.Header.Get(HeaderParticipantName)
	if name == "" {
		name = id
	}
	return models.Participant{
		Info: models.UserInfo{
			ID:     id,
			Name:   name,
			Color:  r.Header.Get(HeaderParticipantColor),
			Avatar: r.Header.Get(HeaderParticipantAvatar),
		},
		ReadOnly: strings.EqualFold(r.Header.Get(HeaderParticipantReadOnly), "true"),
	}
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("access_token")
}

func tokenParticipant(raw, secret string) (models.Participant, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return models.Participant{}, err
	}
	if claims.Subject == "" {
		return models.Participant{}, jwt.ErrTokenInvalidClaims
	}
	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return models.Participant{
		Info: models.UserInfo{
			ID:     claims.Subject,
			Name:   name,
			Color:  claims.Color,
			Avatar: claims.Avatar,
		},
		ReadOnly: claims.ReadOnly,
	}, nil
}

// AccessLog logs one line per request with its status and duration.
func AccessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(next, w, r)
			logger.Info("handled",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", m.Code),
				slog.Duration("duration", m.Duration),
				slog.Int64("bytes", m.Written))
		})
	}
}
