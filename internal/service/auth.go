package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/edulabs/tutor-gateway/internal/models"
	"github.com/edulabs/tutor-gateway/internal/repository"
	"github.com/edulabs/tutor-gateway/internal/session"
	"github.com/edulabs/tutor-gateway/internal/tier"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Profile is a resolved identity: who the caller is and what their
// subscription currently grants. Cached briefly so a burst of chat turns
// does not hammer the profile table.
type Profile struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Tier   string `json:"tier"`
}

const profileCacheTTL = 5 * time.Minute

type AuthService struct {
	repo      *repository.UserRepository
	sessions  *session.Store
	jwtSecret []byte // Stored in env (JWT_SECRET)
	jwtExpiry time.Duration
}

func NewAuthService(repo *repository.UserRepository, sessions *session.Store, secret string, expiryHours int) *AuthService {
	return &AuthService{
		repo:      repo,
		sessions:  sessions,
		jwtSecret: []byte(secret),
		jwtExpiry: time.Duration(expiryHours) * time.Hour,
	}
}

// Creates a new student account on the free tier
func (s *AuthService) Register(ctx context.Context, email, password, name string) error {
	existingUser, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existingUser != nil {
		return errors.New("user with this email already exists")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:            email,
		PasswordHash:     string(hashedPassword),
		Name:             name,
		Role:             "student",
		SubscriptionTier: tier.Free.String(),
	}

	return s.repo.Create(ctx, user)
}

// Authenticates a user and returns a JWT token
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", errors.New("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", errors.New("invalid credentials")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID.String(),
		"email":   user.Email,
		"role":    user.Role,
		"exp":     time.Now().Add(s.jwtExpiry).Unix(),
		"iat":     time.Now().Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return tokenString, nil
}

// Validates a JWT token and returns the claims
func (s *AuthService) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

// ResolveIdentity validates the bearer token and loads the caller's profile
// with their effective subscription tier. An expired subscription counts as
// free for this request; the persistent downgrade runs off the critical
// path so the profile table write never delays admission.
func (s *AuthService) ResolveIdentity(ctx context.Context, tokenString string) (*Profile, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return nil, errors.New("token missing user_id claim")
	}

	// Cache hit skips the profile lookup entirely.
	cacheID := "profile:" + userID
	var cached Profile
	if found, err := s.sessions.Get(ctx, cacheID, &cached); err == nil && found {
		return &cached, nil
	}

	user, err := s.repo.FindById(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.New("user profile not found")
	}

	effectiveTier := user.SubscriptionTier
	if user.SubscriptionEndDate != nil && user.SubscriptionEndDate.Before(time.Now()) {
		effectiveTier = tier.Free.String()
		go s.downgradeExpired(user.ID.String())
	}

	if _, err := tier.Parse(effectiveTier); err != nil {
		return nil, err
	}

	profile := &Profile{
		UserID: user.ID.String(),
		Email:  user.Email,
		Role:   user.Role,
		Tier:   effectiveTier,
	}

	if err := s.sessions.Set(ctx, cacheID, profile, profileCacheTTL); err != nil {
		// Cache miss next time, nothing else lost.
		log.Printf("auth: profile cache write failed for %s: %v", userID, err)
	}

	return profile, nil
}

// InvalidateProfile drops the cached profile, used after subscription changes.
func (s *AuthService) InvalidateProfile(ctx context.Context, userID string) error {
	return s.sessions.Delete(ctx, "profile:"+userID)
}

func (s *AuthService) downgradeExpired(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.repo.UpdateSubscriptionTier(ctx, userID, tier.Free.String()); err != nil {
		log.Printf("auth: failed to downgrade expired subscription for %s: %v", userID, err)
	}
}
