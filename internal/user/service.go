package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Service struct {
	repo      *Repository
	jwtSecret string
}

type Claims struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewService(repo *Repository, secret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: secret,
	}
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*Profile, error) {
	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	p := &Profile{
		ID:          uuid.NewString(),
		Username:    req.Username,
		Password:    string(hashedPwd),
		DisplayName: req.DisplayName,
	}

	if err := s.repo.CreateUser(ctx, p); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return &Profile{ID: p.ID, Username: p.Username, DisplayName: p.DisplayName}, nil
}

// Login verifies credentials, refreshes the durable profile (last login plus
// the presence mirror, the way the original marks the user online on auth
// state change) and issues a signed token.
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	p, err := s.repo.GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(p.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := s.repo.TouchLogin(ctx, p.ID); err != nil {
		return nil, fmt.Errorf("touch login: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ID:       p.ID,
		Username: p.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "go-messenger",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	})

	ss, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		AccessToken: ss,
		ID:          p.ID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
	}, nil
}

func (s *Service) ValidateToken(tokenString string) (string, string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return "", "", err
	}
	if !token.Valid {
		return "", "", errors.New("invalid token")
	}

	return claims.ID, claims.Username, nil
}

func (s *Service) SearchUsers(ctx context.Context, query string) ([]Profile, error) {
	return s.repo.SearchUsers(ctx, query)
}

func (s *Service) UpdateProfile(ctx context.Context, id string, req *UpdateProfileRequest) error {
	return s.repo.UpdateProfile(ctx, id, req.DisplayName, req.AvatarURL)
}
