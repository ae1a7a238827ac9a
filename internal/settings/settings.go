package settings

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/crmhawkins/comurban-sub001/internal/domain"
	"github.com/crmhawkins/comurban-sub001/internal/repository"
	"github.com/crmhawkins/comurban-sub001/pkg/cache"
)

// Well-known setting keys.
const (
	KeyAutoReplyEnabled  = "auto_reply_enabled"
	KeyAutoReplyGreeting = "auto_reply_greeting"
	KeyOfficeHours       = "office_hours"
	KeyIncidentSweepMins = "incident_sweep_minutes"

	// KeyWhatsAppVerifyToken overrides the env verify token so it can be
	// rotated without a redeploy.
	KeyWhatsAppVerifyToken = "whatsapp_verify_token"
)

const cachePrefix = "settings:"

// Service is a read-through cache over DB-backed settings. Redis is optional;
// without it every read hits the database, which is still fine at webhook
// volumes.
type Service struct {
	repo  *repository.SettingRepository
	cache *cache.Cache
	ttl   time.Duration
}

func NewService(repo *repository.SettingRepository, c *cache.Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Service{repo: repo, cache: c, ttl: ttl}
}

// Get returns the setting value, or fallback when the key is unset.
func (s *Service) Get(ctx context.Context, key, fallback string) string {
	if s.cache != nil {
		if val, found, err := s.cache.GetString(ctx, cachePrefix+key); err == nil && found {
			return val
		} else if err != nil {
			log.Printf("[Settings] cache read for %s failed: %v", key, err)
		}
	}

	setting, err := s.repo.Get(ctx, key)
	if err != nil {
		log.Printf("[Settings] db read for %s failed: %v", key, err)
		return fallback
	}
	if setting == nil {
		return fallback
	}

	if s.cache != nil {
		if err := s.cache.SetString(ctx, cachePrefix+key, setting.Value, s.ttl); err != nil {
			log.Printf("[Settings] cache write for %s failed: %v", key, err)
		}
	}
	return setting.Value
}

// GetBool parses the setting as a boolean, with fallback on absence or junk.
func (s *Service) GetBool(ctx context.Context, key string, fallback bool) bool {
	raw := s.Get(ctx, key, "")
	if raw == "" {
		return fallback
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return val
}

// GetInt parses the setting as an integer, with fallback on absence or junk.
func (s *Service) GetInt(ctx context.Context, key string, fallback int) int {
	raw := s.Get(ctx, key, "")
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return val
}

// All lists every stored setting straight from the database; admin reads
// should not see stale cached values.
func (s *Service) All(ctx context.Context) ([]*domain.Setting, error) {
	return s.repo.GetAll(ctx)
}

// Set writes through to the database and invalidates the cached copy so the
// next read sees the new value immediately instead of after TTL expiry.
func (s *Service) Set(ctx context.Context, key, value string) error {
	if err := s.repo.Set(ctx, key, value); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Del(ctx, cachePrefix+key); err != nil {
			log.Printf("[Settings] cache invalidation for %s failed: %v", key, err)
		}
	}
	return nil
}
