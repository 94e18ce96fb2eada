// Package credentials manages the external system's API credentials:
// masked reads, probe-before-save writes.
package credentials

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/invsync/backend/internal/domain/shared"
	syncdomain "github.com/invsync/backend/internal/domain/sync"
)

// Service wraps the credential repository behind a surface that never
// returns the raw secret.
type Service struct {
	repo   syncdomain.CredentialRepository
	probe  syncdomain.ConnectionProbe
	logger *zap.Logger
}

// NewService creates a credential service.
func NewService(repo syncdomain.CredentialRepository, probe syncdomain.ConnectionProbe, logger *zap.Logger) *Service {
	return &Service{repo: repo, probe: probe, logger: logger}
}

// Get returns the stored credentials in masked form. Unconfigured is
// not an error: callers get a zero masked set with Configured false.
func (s *Service) Get(ctx context.Context) (syncdomain.MaskedCredentials, error) {
	creds, err := s.repo.Get(ctx)
	if errors.Is(err, shared.ErrNotFound) {
		return syncdomain.Credentials{}.Masked(), nil
	}
	if err != nil {
		return syncdomain.MaskedCredentials{}, err
	}
	return creds.Masked(), nil
}

// Save validates and probes the candidate credentials, then persists
// them only if the probe succeeds. A failed probe leaves whatever was
// stored before untouched.
func (s *Service) Save(ctx context.Context, creds syncdomain.Credentials) (syncdomain.ProbeResult, error) {
	if err := creds.Validate(); err != nil {
		return syncdomain.ProbeResult{}, err
	}

	result := s.probe.Probe(ctx, creds)
	if !result.OK {
		s.logger.Warn("credential probe failed, keeping previous credentials",
			zap.String("message", result.Message),
		)
		return result, syncdomain.NewConfigurationError(
			fmt.Sprintf("connection probe failed: %s", result.Message))
	}

	if err := s.repo.Set(ctx, creds); err != nil {
		return result, err
	}
	s.logger.Info("credentials updated", zap.String("base_url", creds.BaseURL))
	return result, nil
}

// Probe checks connectivity with the stored credentials.
func (s *Service) Probe(ctx context.Context) (syncdomain.ProbeResult, error) {
	creds, err := s.repo.Get(ctx)
	if errors.Is(err, shared.ErrNotFound) {
		return syncdomain.ProbeResult{}, syncdomain.NewConfigurationError("no credentials configured")
	}
	if err != nil {
		return syncdomain.ProbeResult{}, err
	}
	return s.probe.Probe(ctx, creds), nil
}

// Clear removes the stored credentials.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.repo.Clear(ctx); err != nil {
		return err
	}
	s.logger.Info("credentials cleared")
	return nil
}
