package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/crmhawkins/comurban-sub001/internal/domain"
	"github.com/crmhawkins/comurban-sub001/internal/incident"
	"github.com/crmhawkins/comurban-sub001/internal/queue"
	"github.com/crmhawkins/comurban-sub001/internal/repository"
	"github.com/crmhawkins/comurban-sub001/internal/settings"
	"github.com/crmhawkins/comurban-sub001/internal/storage"
	"github.com/crmhawkins/comurban-sub001/internal/wacloud"
	"github.com/crmhawkins/comurban-sub001/internal/ws"
	"github.com/crmhawkins/comurban-sub001/pkg/config"
)

// Services bundles all business logic services
type Services struct {
	Auth         *AuthService
	Webhook      *WebhookService
	Conversation *ConversationService
	Call         *CallService
	Incident     *IncidentService
	Jobs         *JobService
	Settings     *settings.Service
	Media        *storage.MediaStore
}

func NewServices(
	cfg *config.Config,
	repos *repository.Repositories,
	hub *ws.Hub,
	wa *wacloud.Client,
	media *storage.MediaStore,
	settingsSvc *settings.Service,
	detector *incident.Detector,
) *Services {
	s := &Services{
		Auth:     NewAuthService(repos.User, cfg.JWTSecret),
		Settings: settingsSvc,
		Media:    media,
	}
	s.Jobs = NewJobService(repos, hub, wa, settingsSvc, detector)
	s.Webhook = NewWebhookService(repos, hub, wa, media)
	s.Conversation = NewConversationService(repos, hub, wa)
	s.Call = NewCallService(repos)
	s.Incident = NewIncidentService(repos, hub)
	return s
}

// SetEnqueuer wires the job transport after construction; the inline fallback
// needs the job handler, which needs the services.
func (s *Services) SetEnqueuer(enq queue.Enqueuer) {
	s.Webhook.enqueuer = enq
}

// AuthService handles staff authentication
type AuthService struct {
	users     *repository.UserRepository
	jwtSecret []byte
}

func NewAuthService(users *repository.UserRepository, jwtSecret string) *AuthService {
	return &AuthService{users: users, jwtSecret: []byte(jwtSecret)}
}

// Login validates credentials and returns a signed token
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return "", nil, fmt.Errorf("looking up user: %w", err)
	}
	if user == nil {
		return "", nil, fmt.Errorf("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, fmt.Errorf("invalid credentials")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      user.ID.String(),
		"username": user.Username,
		"role":     user.Role,
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
		"iat":      time.Now().Unix(),
	})
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", nil, fmt.Errorf("signing token: %w", err)
	}
	return signed, user, nil
}

// ValidateToken parses a JWT and returns the authenticated user id and role.
func (s *AuthService) ValidateToken(tokenString string) (uuid.UUID, string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, "", fmt.Errorf("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid token subject")
	}
	role, _ := claims["role"].(string)
	return userID, role, nil
}
