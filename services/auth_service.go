package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deckstorm/tcg-arena/models"
	"github.com/deckstorm/tcg-arena/repositories"
	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

type SignUpInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DisplayName string `json:"display_name"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Claims is the JWT payload the boundary middleware verifies.
type Claims struct {
	UserID int             `json:"user_id"`
	Role   models.UserRole `json:"role"`
	jwt.RegisteredClaims
}

type AuthService interface {
	// SignUp creates the user account and its player profile together.
	SignUp(ctx context.Context, input SignUpInput) (*models.User, string, error)
	Login(ctx context.Context, input LoginInput) (*models.User, string, error)
	ParseToken(tokenString string) (*Claims, error)
}

type authService struct {
	txManager  repositories.TxManager
	userRepo   repositories.UserRepository
	playerRepo repositories.PlayerRepository
	jwtSecret  []byte
	tokenTTL   time.Duration
	clock      Clock
}

func NewAuthService(
	txManager repositories.TxManager,
	userRepo repositories.UserRepository,
	playerRepo repositories.PlayerRepository,
	jwtSecret string,
	tokenTTL time.Duration,
	clock Clock,
) AuthService {
	return &authService{
		txManager:  txManager,
		userRepo:   userRepo,
		playerRepo: playerRepo,
		jwtSecret:  []byte(jwtSecret),
		tokenTTL:   tokenTTL,
		clock:      clock,
	}
}

func (s *authService) SignUp(ctx context.Context, input SignUpInput) (*models.User, string, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", fmt.Errorf("%w: a valid email is required", ErrValidationFailed)
	}
	if len(input.Password) < minPasswordLength {
		return nil, "", ErrPasswordTooShort
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = strings.TrimSpace(input.FirstName + " " + input.LastName)
	}
	if displayName == "" {
		displayName = email
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hashed),
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Role:         models.RolePlayer,
	}
	err = s.txManager.WithinTx(ctx, func(tx repositories.SQLExecutor) error {
		if errCreate := s.userRepo.Create(ctx, tx, user); errCreate != nil {
			if errors.Is(errCreate, repositories.ErrUserEmailConflict) {
				return ErrUserEmailConflict
			}
			return fmt.Errorf("create user: %w", errCreate)
		}
		player := &models.Player{UserID: user.ID, DisplayName: displayName}
		if errCreate := s.playerRepo.Create(ctx, tx, player); errCreate != nil {
			return fmt.Errorf("create player profile: %w", errCreate)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, "", err
	}
	user.PasswordHash = ""
	return user, token, nil
}

func (s *authService) Login(ctx context.Context, input LoginInput) (*models.User, string, error) {
	user, err := s.userRepo.GetByEmail(ctx, nil, strings.ToLower(strings.TrimSpace(input.Email)))
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("find user by email: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("compare password hash: %w", err)
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, "", err
	}
	user.PasswordHash = ""
	return user, token, nil
}

func (s *authService) issueToken(user *models.User) (string, error) {
	now := s.clock()
	claims := Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", user.ID),
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

func (s *authService) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}
	return claims, nil
}
