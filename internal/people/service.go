package people

import (
	"context"
	"strings"
	"time"

	"community-chat/internal/apperr"
	"community-chat/internal/identity"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// Store is what the service needs from persistence. Implemented by
// Repository (Postgres) and by the memory store in dev mode.
type Store interface {
	CreateAccount(ctx context.Context, a *Account) (*Account, error)
	GetByUsername(ctx context.Context, kind identity.Kind, username string) (*Account, error)
	DisplayName(ctx context.Context, p identity.Participant) (string, error)
}

type Service struct {
	store     Store
	jwtSecret string
}

type Claims struct {
	Kind identity.Kind `json:"kind"`
	ID   int           `json:"id"`
	Name string        `json:"name"`
	jwt.RegisteredClaims
}

func NewService(store Store, secret string) *Service {
	return &Service{
		store:     store,
		jwtSecret: secret,
	}
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*Account, error) {
	if !req.Kind.Valid() {
		return nil, apperr.Validationf("unknown participant kind %q", req.Kind)
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return nil, apperr.Validationf("username and password are required")
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		req.DisplayName = req.Username
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	a := &Account{
		Participant: identity.Participant{Kind: req.Kind},
		Username:    req.Username,
		Password:    string(hashedPwd),
		DisplayName: strings.TrimSpace(req.DisplayName),
	}
	return s.store.CreateAccount(ctx, a)
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	if !req.Kind.Valid() {
		return nil, apperr.Validationf("unknown participant kind %q", req.Kind)
	}

	a, err := s.store.GetByUsername(ctx, req.Kind, req.Username)
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(a.Password), []byte(req.Password)); err != nil {
		return nil, apperr.ErrNotAuthorized
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Kind: a.Participant.Kind,
		ID:   a.Participant.ID,
		Name: a.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "community-chat",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	})

	ss, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		AccessToken: ss,
		Kind:        a.Participant.Kind,
		ID:          a.Participant.ID,
		DisplayName: a.DisplayName,
	}, nil
}

// ValidateToken resolves a bearer token into the participant it was issued
// to. The display name rides along so transport layers can label events
// without another lookup.
func (s *Service) ValidateToken(tokenString string) (identity.Participant, string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return identity.Participant{}, "", errors.Wrap(apperr.ErrNotAuthorized, "invalid token")
	}

	p := identity.Participant{Kind: claims.Kind, ID: claims.ID}
	if !p.Valid() {
		return identity.Participant{}, "", errors.Wrap(apperr.ErrNotAuthorized, "invalid claims")
	}
	return p, claims.Name, nil
}

// DisplayName exposes name resolution to the other components.
func (s *Service) DisplayName(ctx context.Context, p identity.Participant) (string, error) {
	return s.store.DisplayName(ctx, p)
}
