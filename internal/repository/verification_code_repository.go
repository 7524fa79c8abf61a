package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/colegio-adp-api/internal/models"
	appErrors "github.com/noah-isme/colegio-adp-api/pkg/errors"
)

const verificationKeyPrefix = "verification:code:"

// VerificationCodeRepository stores one-time deactivation codes in Redis,
// keyed by the administrator's email. The Redis TTL is set to twice the
// code lifetime so an expired-but-present code can be told apart from a
// missing one; expiry itself is judged against the value's expires_at.
type VerificationCodeRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewVerificationCodeRepository constructs the repository.
func NewVerificationCodeRepository(client *redis.Client, logger *zap.Logger) *VerificationCodeRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerificationCodeRepository{client: client, logger: logger}
}

// Put stores a code for the given email, overwriting any prior entry.
func (r *VerificationCodeRepository) Put(ctx context.Context, email string, code models.VerificationCode, ttl time.Duration) error {
	payload, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("marshal verification code: %w", err)
	}
	if err := r.client.Set(ctx, verificationKeyPrefix+email, payload, 2*ttl).Err(); err != nil {
		return fmt.Errorf("store verification code: %w", err)
	}
	return nil
}

// Get retrieves the stored code for the given email. A missing entry maps
// to ErrCodeNotFound.
func (r *VerificationCodeRepository) Get(ctx context.Context, email string) (*models.VerificationCode, error) {
	raw, err := r.client.Get(ctx, verificationKeyPrefix+email).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, appErrors.ErrCodeNotFound
		}
		return nil, fmt.Errorf("fetch verification code: %w", err)
	}
	var code models.VerificationCode
	if err := json.Unmarshal(raw, &code); err != nil {
		return nil, fmt.Errorf("unmarshal verification code: %w", err)
	}
	return &code, nil
}

// Delete removes the stored code for the given email.
func (r *VerificationCodeRepository) Delete(ctx context.Context, email string) error {
	if err := r.client.Del(ctx, verificationKeyPrefix+email).Err(); err != nil {
		return fmt.Errorf("delete verification code: %w", err)
	}
	return nil
}
