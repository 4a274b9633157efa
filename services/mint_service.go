package services

import (
	"context"
	"errors"
	"strings"

	"resistance-server/models"
	"resistance-server/stores"

	log "github.com/sirupsen/logrus"
)

const (
	maxIdempotencyKeyLen = 128

	MintWarningNoBuiltAttempt = "no_built_attempt"
)

type MintService struct {
	Mints stores.MintStore
}

func NewMintService(mints stores.MintStore) *MintService {
	return &MintService{Mints: mints}
}

func cleanKey(raw string) (string, error) {
	key := strings.TrimSpace(raw)
	if key == "" {
		return "", invalid("missing_idempotency_key")
	}
	if len(key) > maxIdempotencyKeyLen {
		return "", invalid("idempotency_key_too_long")
	}
	return key, nil
}

// RecordAttempt stores a BUILT attempt for the caller. Repeating the call is a no-op.
func (s *MintService) RecordAttempt(ctx context.Context, userID, rawKey string) (*models.MintAttempt, bool, error) {
	key, err := cleanKey(rawKey)
	if err != nil {
		return nil, false, err
	}
	a, created, err := s.Mints.CreateAttempt(ctx, key, userID)
	if err != nil {
		if errors.Is(err, stores.ErrConflict) {
			return nil, false, conflict("idempotency_key_in_use")
		}
		return nil, false, internal("mint_record_failed", err)
	}
	return a, created, nil
}

type ConfirmResult struct {
	Success bool   `json:"success,omitempty"`
	Status  string `json:"status,omitempty"`
	Warning string `json:"warning,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Confirm moves BUILT to COMPLETED. A key with no BUILT attempt is a soft
// success carrying a warning, so retries after a lost response are harmless.
// Keys longer than RecordAttempt accepts can never have been recorded.
func (s *MintService) Confirm(ctx context.Context, rawKey string) (*ConfirmResult, error) {
	key := strings.TrimSpace(rawKey)
	if key == "" {
		return nil, invalid("missing_idempotency_key")
	}
	logger := log.WithField("component", "mint.confirm")
	if len(key) > maxIdempotencyKeyLen {
		logger.WithField("key_len", len(key)).Warn("confirm for an unrecordable key")
		return noBuiltAttempt(), nil
	}
	ok, err := s.Mints.CompleteAttempt(ctx, key)
	if err != nil {
		return nil, internal("mint_confirm_failed", err)
	}
	if !ok {
		logger.WithField("key", key).Warn("no BUILT attempt to confirm")
		return noBuiltAttempt(), nil
	}
	logger.WithField("key", key).Info("mint confirmed")
	return &ConfirmResult{Success: true, Status: models.MintCompleted}, nil
}

func noBuiltAttempt() *ConfirmResult {
	return &ConfirmResult{
		Warning: MintWarningNoBuiltAttempt,
		Detail:  "no BUILT mint attempt exists for this key; it may already be confirmed",
	}
}
