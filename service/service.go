// Package service glues the provisioning boundary, the party registry
// and the termination notification together.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/couchparty/relay/model"
	"github.com/couchparty/relay/party"
	"github.com/rs/zerolog"
)

var (
	ErrNoOwner    = errors.New("owner id not provided")
	ErrIncomplete = errors.New("incomplete party details provided")
	ErrCreate     = errors.New("unable to create party")
	ErrGet        = errors.New("unable to get party")
)

type (
	PartyStore interface {
		Put(p *party.Party) error
		Get(partyID string) (*party.Party, error)
		Delete(partyID string) error
		Stats() (parties, members int)
	}

	// TerminationNotifier informs the external storage collaborator
	// that a party was terminated. The relay itself persists nothing.
	TerminationNotifier interface {
		PartyTerminated(ctx context.Context, partyID string)
	}

	Service struct {
		store    PartyStore
		notifier TerminationNotifier

		// baseCtx bounds the lifetime of per-party background tasks;
		// request contexts are too short-lived for that.
		baseCtx        context.Context
		statusInterval time.Duration
		logger         zerolog.Logger
		partyLogger    zerolog.Logger
	}

	Config struct {
		Store          PartyStore
		Notifier       TerminationNotifier
		BaseContext    context.Context
		StatusInterval time.Duration
		Logger         *zerolog.Logger
	}
)

func NewService(cfg Config) *Service {
	baseCtx := cfg.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Service{
		store:          cfg.Store,
		notifier:       cfg.Notifier,
		baseCtx:        baseCtx,
		statusInterval: cfg.StatusInterval,
		logger:         cfg.Logger.With().Str("component", "service").Logger(),
		partyLogger:    *cfg.Logger,
	}
}

// CreateParty registers exactly one party keyed by partyID and starts
// its status ticker. The party persists until the owner ends it, even
// with zero connected members.
func (svc *Service) CreateParty(partyID, ownerID, videoSrc string) error {
	if ownerID == "" {
		return ErrNoOwner
	}
	if partyID == "" || videoSrc == "" {
		return ErrIncomplete
	}

	p := party.New(party.Config{
		Info: model.PartyInfo{
			ID:      partyID,
			OwnerID: ownerID,
			Src:     videoSrc,
		},
		StatusInterval: svc.statusInterval,
		OnEnd:          svc.partyEnded,
		Logger:         &svc.partyLogger,
	})
	if err := svc.store.Put(p); err != nil {
		return errors.Join(ErrCreate, err)
	}
	go p.Run(svc.baseCtx)

	svc.logger.Debug().
		Str("partyID", partyID).
		Str("ownerID", ownerID).
		Msg("party created")
	return nil
}

// Party resolves partyID for the connection gate.
func (svc *Service) Party(partyID string) (*party.Party, error) {
	p, err := svc.store.Get(partyID)
	if err != nil {
		return nil, errors.Join(ErrGet, err)
	}
	return p, nil
}

func (svc *Service) Stats() (parties, members int) {
	return svc.store.Stats()
}

// partyEnded runs after an owner-issued end: the in-memory record is
// removed immediately, durable deletion is delegated out-of-band.
func (svc *Service) partyEnded(partyID string) {
	if err := svc.store.Delete(partyID); err != nil {
		svc.logger.Error().Err(err).
			Str("partyID", partyID).
			Msg("failed to delete ended party")
	}
	svc.logger.Debug().Str("partyID", partyID).Msg("party removed from registry")

	if svc.notifier != nil {
		go svc.notifier.PartyTerminated(svc.baseCtx, partyID)
	}
}
