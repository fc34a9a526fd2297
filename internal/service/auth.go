package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/avolkov/bank-cards/internal/apperrors"
	"github.com/avolkov/bank-cards/internal/models"
)

const tokenTTL = 24 * time.Hour

// Register creates a new user with a bcrypt-hashed password and the USER
// role.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	taken, err := s.users.ExistsUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.ErrUsernameTaken
	}

	taken, err = s.users.ExistsUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperrors.ErrEmailTaken
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
		Role:         models.RoleUser,
		CreatedAt:    time.Now(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.Infof("User registered: %s", user.Username)
	return user, nil
}

// Login authenticates a user and returns a signed JWT carrying the username
// as subject and the user's role.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	user, err := s.users.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return "", nil, apperrors.ErrInvalidCredentials
		}
		return "", nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, apperrors.ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.Username,
		"role": string(user.Role),
		"exp":  jwt.NewNumericDate(time.Now().Add(tokenTTL)).Unix(),
	})
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.Infof("User logged in: %s", user.Username)
	return tokenString, user, nil
}
