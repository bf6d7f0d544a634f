package member

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrMissingFields      = errors.New("name, email and password are required")
	ErrMissingName        = errors.New("name is required")
)

// Store is the persistence the service needs; *Repository satisfies it.
type Store interface {
	CreateMember(ctx context.Context, m *Member) (*Member, error)
	GetByEmail(ctx context.Context, email string) (*Member, error)
	GetByID(ctx context.Context, id string) (*Member, error)
	ListMembers(ctx context.Context) ([]Member, error)
	SearchMembers(ctx context.Context, query string) ([]Member, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	UpdateProfile(ctx context.Context, id, name, avatar string) error
}

type Service struct {
	repo      Store
	jwtSecret string
	tokenTTL  time.Duration
	now       func() time.Time

	admins    map[string]bool
	onProfile func(Member)
}

type Option func(*Service)

// WithAdminEmails makes members registering with one of these addresses
// admins. Everyone else starts as an assistant.
func WithAdminEmails(emails ...string) Option {
	return func(s *Service) {
		for _, e := range emails {
			if e = normalizeEmail(e); e != "" {
				s.admins[e] = true
			}
		}
	}
}

// OnProfileChange registers fn to receive every member whose profile was
// edited.
func OnProfileChange(fn func(Member)) Option {
	return func(s *Service) { s.onProfile = fn }
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type Claims struct {
	MemberID string `json:"member_id"`
	Role     Role   `json:"role"`
	jwt.RegisteredClaims
}

func NewService(repo Store, secret string, tokenTTL time.Duration, opts ...Option) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	s := &Service{
		repo:      repo,
		jwtSecret: secret,
		tokenTTL:  tokenTTL,
		now:       time.Now,
		admins:    map[string]bool{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a team member. Configured admin addresses get the admin
// role, everyone else the assistant role.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*Member, error) {
	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return nil, ErrMissingFields
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	role := RoleAssistant
	if s.admins[req.Email] {
		role = RoleAdmin
	}
	m := &Member{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hashedPwd),
		Role:         role,
		Status:       StatusOffline,
	}
	return s.repo.CreateMember(ctx, m)
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	m, err := s.repo.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.IssueToken(m)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{
		AccessToken: token,
		ID:          m.ID,
		Name:        m.Name,
		Role:        m.Role,
	}, nil
}

func (s *Service) IssueToken(m *Member) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		MemberID: m.ID,
		Role:     m.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   m.ID,
			Issuer:    "teamhq",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	})
	return token.SignedString([]byte(s.jwtSecret))
}

// ValidateToken returns the member id and role carried by a token.
func (s *Service) ValidateToken(tokenString string) (string, string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.MemberID == "" {
		return "", "", ErrInvalidToken
	}
	return claims.MemberID, string(claims.Role), nil
}

func (s *Service) Get(ctx context.Context, id string) (*Member, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListMembers(ctx context.Context) ([]Member, error) {
	return s.repo.ListMembers(ctx)
}

func (s *Service) SearchMembers(ctx context.Context, query string) ([]Member, error) {
	return s.repo.SearchMembers(ctx, strings.TrimSpace(query))
}

func (s *Service) SetStatus(ctx context.Context, id string, status Status) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	return s.repo.UpdateStatus(ctx, id, status)
}

// UpdateProfile sets the member's display name and avatar and returns the
// updated member.
func (s *Service) UpdateProfile(ctx context.Context, id string, req *ProfileRequest) (*Member, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrMissingName
	}
	if err := s.repo.UpdateProfile(ctx, id, name, strings.TrimSpace(req.Avatar)); err != nil {
		return nil, err
	}
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.onProfile != nil {
		s.onProfile(*m)
	}
	return m, nil
}
