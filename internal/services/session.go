package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/orderledger/apiserver/types"
)

// ErrSessionInvalid is returned for tokens that are malformed, expired, or
// whose server-side session has been revoked.
var ErrSessionInvalid = errors.New("invalid session")

// SessionRepository defines persistence operations for sessions.
type SessionRepository interface {
	Create(ctx context.Context, userID int, token string, ttl time.Duration) (types.Session, error)
	Get(ctx context.Context, token string) (types.Session, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context) error
}

// SessionService issues and validates session tokens. The wire token is an
// HS256 JWT whose ID claim is a random session token persisted server-side,
// so logout genuinely revokes a session even while the JWT itself is still
// within its validity window.
type SessionService struct {
	repo   SessionRepository
	secret []byte
	ttl    time.Duration
}

func NewSessionService(repo SessionRepository, jwtSecret string, ttl time.Duration) *SessionService {
	return &SessionService{
		repo:   repo,
		secret: []byte(jwtSecret),
		ttl:    ttl,
	}
}

// Issue transitions the user to the authenticated state: it persists a new
// session and returns the signed token. Expired sessions are swept
// opportunistically, best effort.
func (s *SessionService) Issue(ctx context.Context, userID int) (string, error) {
	if err := s.repo.DeleteExpired(ctx); err != nil {
		slog.WarnContext(ctx, "sweep expired sessions", "error", err)
	}

	sessionToken, err := newSessionToken()
	if err != nil {
		return "", err
	}

	if _, err := s.repo.Create(ctx, userID, sessionToken, s.ttl); err != nil {
		return "", err
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		ID:        sessionToken,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate returns the authenticated user id for a token. A valid signature
// is not enough: the referenced session must still exist and be unexpired.
func (s *SessionService) Validate(ctx context.Context, tokenString string) (int, error) {
	userID, sessionToken, err := s.parse(tokenString)
	if err != nil {
		return 0, ErrSessionInvalid
	}

	session, err := s.repo.Get(ctx, sessionToken)
	if err != nil {
		if isNotFound(err) {
			return 0, ErrSessionInvalid
		}
		return 0, err
	}
	if session.UserID != userID {
		return 0, ErrSessionInvalid
	}
	return userID, nil
}

// Revoke deletes the server-side session. Unknown tokens are not an error;
// logout is idempotent.
func (s *SessionService) Revoke(ctx context.Context, tokenString string) error {
	_, sessionToken, err := s.parse(tokenString)
	if err != nil {
		return ErrSessionInvalid
	}
	if err := s.repo.Delete(ctx, sessionToken); err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func (s *SessionService) parse(tokenString string) (int, string, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return 0, "", err
	}
	if !token.Valid {
		return 0, "", errors.New("invalid token")
	}

	userID, err := strconv.Atoi(strings.TrimSpace(claims.Subject))
	if err != nil || userID < 1 {
		return 0, "", errors.New("invalid subject")
	}
	if strings.TrimSpace(claims.ID) == "" {
		return 0, "", errors.New("missing session id")
	}
	return userID, claims.ID, nil
}

func newSessionToken() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}
