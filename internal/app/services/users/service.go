// Package users manages accounts and token-based authentication.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/simsynai/platform/internal/app/domain/user"
	"github.com/simsynai/platform/internal/app/storage"
	"github.com/simsynai/platform/pkg/logger"
)

// ErrInvalidCredentials is returned for any authentication failure. The
// message is deliberately generic so callers cannot probe which accounts
// exist.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Claims is the JWT payload issued for authenticated sessions.
type Claims struct {
	UserID   string `json:"uid"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Service coordinates account registration, authentication and token
// verification.
type Service struct {
	store     storage.UserStore
	jwtSecret []byte
	tokenTTL  time.Duration
	log       *logger.Logger
}

// New creates a user service. tokenTTL falls back to 24h when unset.
func New(store storage.UserStore, jwtSecret string, tokenTTL time.Duration, log *logger.Logger) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	if log == nil {
		log = logger.NewDefault("users")
	}
	return &Service{
		store:     store,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		log:       log,
	}
}

// RegisterInput carries the fields for a new account.
type RegisterInput struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	FullName       string `json:"full_name"`
	PreferredModel string `json:"preferred_model"`
}

// Register creates a new active account. Usernames and emails must be unique.
func (s *Service) Register(ctx context.Context, in RegisterInput) (user.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if in.Username == "" {
		return user.User{}, fmt.Errorf("username is required")
	}
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return user.User{}, fmt.Errorf("a valid email is required")
	}
	if len(in.Password) < 8 {
		return user.User{}, fmt.Errorf("password must be at least 8 characters")
	}

	if _, err := s.store.GetUserByUsername(ctx, in.Username); err == nil {
		return user.User{}, fmt.Errorf("username %q is already taken", in.Username)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return user.User{}, err
	}
	if _, err := s.store.GetUserByEmail(ctx, in.Email); err == nil {
		return user.User{}, fmt.Errorf("email %q is already registered", in.Email)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return user.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return user.User{}, fmt.Errorf("hash password: %w", err)
	}

	u := user.User{
		ID:             uuid.NewString(),
		Username:       in.Username,
		Email:          in.Email,
		HashedPassword: string(hash),
		FullName:       in.FullName,
		PreferredModel: in.PreferredModel,
		IsActive:       true,
	}
	u, err = s.store.CreateUser(ctx, u)
	if err != nil {
		return user.User{}, err
	}

	s.log.WithField("user_id", u.ID).WithField("username", u.Username).Info("user registered")
	return u, nil
}

// Authenticate checks credentials and returns the account on success. Any
// failure, including an unknown username or an inactive account, yields
// ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (user.User, error) {
	u, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Burn a hash comparison anyway so the timing does not differ
			// between unknown and known usernames.
			_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$000000000000000000000uGyjlXVx1vb9EZ2q5kCO1lqh9e17RW6y"), []byte(password))
			return user.User{}, ErrInvalidCredentials
		}
		return user.User{}, err
	}
	if !u.IsActive {
		return user.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(password)); err != nil {
		return user.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// IssueToken mints a signed session token for the user.
func (s *Service) IssueToken(u user.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   u.ID,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates a session token and returns its claims.
func (s *Service) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// Get fetches an account by id.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	return s.store.GetUser(ctx, id)
}

// UpdateInput carries optional profile changes.
type UpdateInput struct {
	FullName       *string `json:"full_name"`
	PreferredModel *string `json:"preferred_model"`
	Password       *string `json:"password"`
}

// Update applies profile changes to an account.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (user.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return user.User{}, err
	}

	if in.FullName != nil {
		u.FullName = *in.FullName
	}
	if in.PreferredModel != nil {
		u.PreferredModel = *in.PreferredModel
	}
	if in.Password != nil {
		if len(*in.Password) < 8 {
			return user.User{}, fmt.Errorf("password must be at least 8 characters")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), bcrypt.DefaultCost)
		if err != nil {
			return user.User{}, fmt.Errorf("hash password: %w", err)
		}
		u.HashedPassword = string(hash)
	}

	return s.store.UpdateUser(ctx, u)
}
