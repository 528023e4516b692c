package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/suuupra/upi-switch/internal/cache"
	"github.com/suuupra/upi-switch/internal/models"
	repo "github.com/suuupra/upi-switch/internal/repository"
)

// VPAService resolves virtual payment addresses to bank accounts,
// cache-aside over the durable mapping store. Cache staleness costs latency,
// never correctness: the store stays the source of truth and entries carry a
// TTL.
type VPAService struct {
	vpas  repo.VPAs
	cache cache.VPACache
	ttl   time.Duration
	log   *slog.Logger
}

func NewVPAService(vpas repo.VPAs, c cache.VPACache, ttl time.Duration, log *slog.Logger) *VPAService {
	return &VPAService{vpas: vpas, cache: c, ttl: ttl, log: log}
}

// Resolve returns the mapping for a VPA. models.ErrVPANotFound means the VPA
// is unregistered or inactive; any other error is a transport fault.
func (s *VPAService) Resolve(ctx context.Context, vpa string) (*models.VPAMapping, error) {
	if s.cache != nil {
		m, err := s.cache.Get(ctx, vpa)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			// Degraded cache is a latency problem, not a resolution failure.
			s.log.Warn("vpa cache read failed", "vpa", vpa, "err", err)
		}
	}

	m, err := s.vpas.Get(ctx, vpa)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, m, s.ttl); err != nil {
			s.log.Warn("vpa cache write failed", "vpa", vpa, "err", err)
		}
	}
	return m, nil
}
