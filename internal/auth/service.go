package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linuskang/bubbly/internal/db"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	loginLinkTTL = 10 * time.Minute
	sessionTTL   = 7 * 24 * time.Hour
)

var (
	ErrInvalidEmail = errors.New("email required")
	ErrInvalidToken = errors.New("login link invalid or expired")
	ErrNotFound     = errors.New("user not found")
)

// Mailer delivers the magic sign-in link. Email transport is an
// external collaborator; the default implementation just logs the
// link so local development works without credentials.
type Mailer interface {
	SendLoginLink(ctx context.Context, email, link string) error
}

type LogMailer struct {
	Log *logrus.Logger
}

func (m LogMailer) SendLoginLink(_ context.Context, email, link string) error {
	if m.Log != nil {
		m.Log.WithFields(logrus.Fields{"email": email, "link": link}).Info("magic sign-in link")
	}
	return nil
}

type Service struct {
	secret  []byte
	db      db.Querier
	mailer  Mailer
	baseURL string
}

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

func NewService(secret, baseURL string, db db.Querier, mailer Mailer) *Service {
	return &Service{
		secret:  []byte(secret),
		db:      db,
		mailer:  mailer,
		baseURL: baseURL,
	}
}

// RequestLink creates the account on first sign-in, stores a
// single-use login token valid for ten minutes, and mails the link.
// Only the bcrypt hash of the token secret is persisted.
func (s *Service) RequestLink(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return ErrInvalidEmail
	}

	var userID string
	row := s.db.QueryRow(ctx, `
		INSERT INTO users (id, email)
		VALUES ($1,$2)
		ON CONFLICT (email) DO UPDATE SET updated_at=now()
		RETURNING id
	`, uuid.NewString(), email)
	if err := row.Scan(&userID); err != nil {
		return err
	}

	tokenID := uuid.NewString()
	secret := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO login_tokens (id, user_id, secret_hash, expires_at)
		VALUES ($1,$2,$3,$4)
	`, tokenID, userID, string(hash), time.Now().Add(loginLinkTTL))
	if err != nil {
		return err
	}

	link := fmt.Sprintf("%s/auth/verify?token=%s.%s", s.baseURL, tokenID, secret)
	return s.mailer.SendLoginLink(ctx, email, link)
}

// Verify redeems a magic-link token and issues a session JWT. Tokens
// are single-use and expire ten minutes after issue.
func (s *Service) Verify(ctx context.Context, token string) (TokenResponse, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return TokenResponse{}, ErrInvalidToken
	}

	var (
		userID     string
		secretHash string
		expiresAt  time.Time
		consumedAt *time.Time
		username   *string
	)
	row := s.db.QueryRow(ctx, `
		SELECT lt.user_id, lt.secret_hash, lt.expires_at, lt.consumed_at, u.username
		FROM login_tokens lt
		JOIN users u ON u.id = lt.user_id
		WHERE lt.id=$1
	`, parts[0])
	if err := row.Scan(&userID, &secretHash, &expiresAt, &consumedAt, &username); err != nil {
		return TokenResponse{}, ErrInvalidToken
	}

	if consumedAt != nil || time.Now().After(expiresAt) {
		return TokenResponse{}, ErrInvalidToken
	}
	if err := bcrypt.CompareHashAndPassword([]byte(secretHash), []byte(parts[1])); err != nil {
		return TokenResponse{}, ErrInvalidToken
	}

	if _, err := s.db.Exec(ctx, `UPDATE login_tokens SET consumed_at=now() WHERE id=$1`, parts[0]); err != nil {
		return TokenResponse{}, err
	}

	access, err := s.signToken(userID, sessionTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	return TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(sessionTTL.Seconds()),
		Onboarding:  username == nil || *username == "",
	}, nil
}

// Me returns the session user's account record.
func (s *Service) Me(ctx context.Context, userID string) (User, error) {
	var u User
	var name, username, image, bio *string
	row := s.db.QueryRow(ctx, `
		SELECT id, name, username, email, image, bio, xp, level, created_at, updated_at
		FROM users WHERE id=$1
	`, userID)
	if err := row.Scan(&u.ID, &name, &username, &u.Email, &image, &bio, &u.XP, &u.Level, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, ErrNotFound
	}
	u.Name = deref(name)
	u.Username = deref(username)
	u.Image = deref(image)
	u.Bio = deref(bio)
	return u, nil
}

func (s *Service) signToken(userID string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
