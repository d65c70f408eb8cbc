package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/ikkim/marketplace-ingest/internal/app/model"
	"github.com/ikkim/marketplace-ingest/internal/app/repository"
	"github.com/ikkim/marketplace-ingest/pkg/logger"
	"golang.org/x/crypto/blake2b"
)

const (
	apiKeyPrefix    = "mk_"
	apiKeyBytes     = 24
	credentialTTL   = 5 * time.Minute
	displayedPrefix = 10
)

var (
	ErrInvalidAPIKey = errors.New("유효하지 않은 API 키입니다")
	ErrRevokedAPIKey = errors.New("폐기된 API 키입니다")
	ErrEmptyOperator = errors.New("operator is required")
)

// KeyCache caches resolved credentials. The Redis-backed implementation lives
// in pkg/redis.
type KeyCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// IssuedKey carries the plaintext key. It is never stored.
type IssuedKey struct {
	ID       uint   `json:"id"`
	Operator string `json:"operator"`
	Key      string `json:"key"`
	Prefix   string `json:"prefix"`
}

type CredentialService interface {
	Issue(ctx context.Context, operator string) (*IssuedKey, error)
	Authenticate(ctx context.Context, key string) (string, error)
	Revoke(ctx context.Context, id uint) error
	ListKeys(operator string) ([]model.APIKey, error)
}

type credentialService struct {
	keyRepo repository.APIKeyRepository
	cache   KeyCache
	now     func() time.Time
}

// NewCredentialService cache may be nil.
func NewCredentialService(keyRepo repository.APIKeyRepository, cache KeyCache) CredentialService {
	return &credentialService{
		keyRepo: keyRepo,
		cache:   cache,
		now:     time.Now,
	}
}

// HashAPIKey returns the hex blake2b-256 digest stored for a key.
func HashAPIKey(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (s *credentialService) Issue(ctx context.Context, operator string) (*IssuedKey, error) {
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return nil, ErrEmptyOperator
	}

	buf := make([]byte, apiKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	plain := apiKeyPrefix + hex.EncodeToString(buf)

	key := &model.APIKey{
		Operator: operator,
		KeyHash:  HashAPIKey(plain),
		Prefix:   plain[:displayedPrefix],
	}
	if err := s.keyRepo.Create(key); err != nil {
		return nil, err
	}

	return &IssuedKey{
		ID:       key.ID,
		Operator: operator,
		Key:      plain,
		Prefix:   key.Prefix,
	}, nil
}

// Authenticate resolves a plaintext key to the operator it was issued to.
func (s *credentialService) Authenticate(ctx context.Context, key string) (string, error) {
	if !strings.HasPrefix(key, apiKeyPrefix) {
		return "", ErrInvalidAPIKey
	}
	hash := HashAPIKey(key)

	if s.cache != nil {
		operator, ok, err := s.cache.Get(ctx, hash)
		if err == nil && ok {
			return operator, nil
		}
		// 캐시 장애는 DB 조회로 대체
	}

	stored, err := s.keyRepo.FindByHash(hash)
	if err != nil {
		return "", err
	}
	if stored == nil {
		return "", ErrInvalidAPIKey
	}
	if stored.Revoked {
		return "", ErrRevokedAPIKey
	}

	if err := s.keyRepo.TouchLastUsed(stored.ID, s.now()); err != nil {
		logger.Warn("Failed to record API key usage", map[string]interface{}{
			"key_id": stored.ID,
			"error":  err.Error(),
		})
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, hash, stored.Operator, credentialTTL); err != nil {
			logger.Warn("Failed to cache API key", map[string]interface{}{
				"key_id": stored.ID,
				"error":  err.Error(),
			})
		}
	}
	return stored.Operator, nil
}

func (s *credentialService) Revoke(ctx context.Context, id uint) error {
	stored, err := s.findByID(id)
	if err != nil {
		return err
	}
	if err := s.keyRepo.Revoke(id); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, stored.KeyHash); err != nil {
			logger.Warn("Failed to evict revoked API key from cache", map[string]interface{}{
				"key_id": id,
				"error":  err.Error(),
			})
		}
	}
	logger.Info("API key revoked", map[string]interface{}{
		"key_id":   id,
		"operator": stored.Operator,
	})
	return nil
}

func (s *credentialService) ListKeys(operator string) ([]model.APIKey, error) {
	return s.keyRepo.FindByOperator(operator)
}

func (s *credentialService) findByID(id uint) (*model.APIKey, error) {
	key, err := s.keyRepo.FindByID(id)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, ErrInvalidAPIKey
	}
	return key, nil
}
