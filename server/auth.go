package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/taskhive/taskhive/server/api"
	"github.com/taskhive/taskhive/store"
)

// Token types embedded in the "type" claim. Refresh tokens are only
// accepted by the refresh endpoint, never by the auth middleware.
const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// claims is the JWT payload issued by this server.
type claims struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

func (s *Server) accessTTL() time.Duration {
	mins := s.cfg.Auth.AccessExpiryMins
	if mins <= 0 {
		mins = 30
	}
	return time.Duration(mins) * time.Minute
}

func (s *Server) refreshTTL() time.Duration {
	days := s.cfg.Auth.RefreshExpiryDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

// signToken issues one HS256 token for the given subject.
func (s *Server) signToken(userID, email, role, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		Email:     email,
		Role:      role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := tok.SignedString([]byte(s.cfg.Auth.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// verifyToken parses and validates a token, returning its claims.
func (s *Server) verifyToken(tokenStr string) (*claims, error) {
	var c claims
	_, err := jwt.ParseWithClaims(tokenStr, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.Auth.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// tokenPair bundles the two tokens returned by login and refresh.
type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"` // access token lifetime in seconds
}

func (s *Server) issueTokenPair(userID, email, role string) (*tokenPair, error) {
	access, err := s.signToken(userID, email, role, tokenTypeAccess, s.accessTTL())
	if err != nil {
		return nil, err
	}
	refresh, err := s.signToken(userID, email, role, tokenTypeRefresh, s.refreshTTL())
	if err != nil {
		return nil, err
	}
	return &tokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.accessTTL().Seconds()),
	}, nil
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// handleRegister creates an account in the upstream auth service and
// returns a token pair so clients can sign in immediately.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || len(req.Password) < 8 {
		writeJSONError(w, http.StatusBadRequest, "email and a password of at least 8 characters are required")
		return
	}

	user, err := s.store.SignUp(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		s.logger.Warn("signup failed", slog.String("email", req.Email), slog.Any("err", err))
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	pair, err := s.issueTokenPair(user.ID, user.Email, "user")
	if err != nil {
		s.logger.Error("issue tokens", slog.Any("err", err))
		writeJSONError(w, http.StatusInternalServerError, "could not issue tokens")
		return
	}
	writeJSON(w, http.StatusCreated, pair)
}

// handleLogin validates credentials against the upstream auth service
// and issues a token pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.store.SignInWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	role := "user"
	if profile, err := s.store.GetProfile(r.Context(), user.ID); err == nil && profile.Role != "" {
		role = profile.Role
	}

	pair, err := s.issueTokenPair(user.ID, user.Email, role)
	if err != nil {
		s.logger.Error("issue tokens", slog.Any("err", err))
		writeJSONError(w, http.StatusInternalServerError, "could not issue tokens")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// handleRefresh exchanges a valid refresh token for a new pair.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := s.verifyToken(req.RefreshToken)
	if err != nil {
		writeJSONError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	if c.TokenType != tokenTypeRefresh {
		writeJSONError(w, http.StatusUnauthorized, "not a refresh token")
		return
	}

	pair, err := s.issueTokenPair(c.Subject, c.Email, c.Role)
	if err != nil {
		s.logger.Error("issue tokens", slog.Any("err", err))
		writeJSONError(w, http.StatusInternalServerError, "could not issue tokens")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// handleMe returns the authenticated user's profile, falling back to
// the token claims when the profile row is missing.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := api.IdentityFrom(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	if profile, err := s.store.GetProfile(r.Context(), id.UserID); err == nil {
		writeJSON(w, http.StatusOK, profile)
		return
	}
	writeJSON(w, http.StatusOK, store.Profile{ID: id.UserID, Email: id.Email, Role: id.Role})
}

// authMiddleware enforces a bearer access token and stashes the caller
// identity in the request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeJSONError(w, http.StatusUnauthorized, "missing or invalid Authorization header")
			return
		}
		c, err := s.verifyToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if c.TokenType != tokenTypeAccess {
			writeJSONError(w, http.StatusUnauthorized, "refresh tokens cannot access the API")
			return
		}

		ctx := api.ContextWithIdentity(r.Context(), api.Identity{
			UserID: c.Subject,
			Email:  c.Email,
			Role:   c.Role,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
