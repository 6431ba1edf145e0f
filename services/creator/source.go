package creator

import (
	"context"
	"errors"

	"creatorhub-engine/services/scoring"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Source resolves a creator's tier and bonus eligibility. It never fails: any
// lookup problem yields the default profile with the unresolved flags set.
type Source struct {
	repo   Repository
	logger *zap.Logger
	group  singleflight.Group
}

type SourceParams struct {
	fx.In

	Repository Repository
	Logger     *zap.Logger `optional:"true"`
}

func NewSource(p SourceParams) *Source {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{repo: p.Repository, logger: logger}
}

func (s *Source) Resolve(ctx context.Context, creatorID string) Profile {
	v, _, _ := s.group.Do(creatorID, func() (interface{}, error) {
		return s.resolve(ctx, creatorID), nil
	})
	return v.(Profile)
}

func (s *Source) resolve(ctx context.Context, creatorID string) Profile {
	profile := defaultProfile(creatorID)

	acct, err := s.repo.Get(ctx, creatorID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("creator lookup failed, using default profile",
				zap.String("creator_id", creatorID), zap.Error(err))
		}
		return profile
	}

	if tier, err := scoring.ParseTier(acct.Tier); err == nil {
		profile.Tier = tier
		profile.TierResolved = true
	} else {
		s.logger.Warn("unknown creator tier", zap.String("creator_id", creatorID), zap.String("tier", acct.Tier))
	}

	if acct.HasBonusPass != nil {
		profile.HasBonusPass = *acct.HasBonusPass
		profile.BonusResolved = true
	}

	return profile
}
