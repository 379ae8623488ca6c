// Package party holds the authoritative state of one shared viewing
// session: playback snapshot, membership, broadcast fan-out and the
// directed signaling relay.
package party

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/couchparty/relay/model"
	"github.com/couchparty/relay/protocol"
	"github.com/rs/zerolog"
)

const defaultStatusInterval = 2 * time.Second

// Transport is the send side of one member's connection. A Transport
// reporting a send error is treated as gone and evicted from the party.
type Transport interface {
	Send(data []byte) error
	Close() error
}

// Member is one participant's server-side state. Fields are mutated
// only while the owning party's lock is held.
type Member struct {
	userID       string
	nickname     string
	voiceEnabled bool
	joined       bool
	transport    Transport
}

func NewMember(userID string, transport Transport) *Member {
	return &Member{
		userID:    userID,
		transport: transport,
	}
}

func (m *Member) UserID() string { return m.userID }

// Nickname is set by the join handshake. Not safe to call concurrently
// with message handling.
func (m *Member) Nickname() string { return m.nickname }

func (m *Member) VoiceEnabled() bool { return m.voiceEnabled }

func (m *Member) Joined() bool { return m.joined }

type (
	Config struct {
		Info           model.PartyInfo
		StatusInterval time.Duration
		OnEnd          func(partyID string)
		Logger         *zerolog.Logger
	}

	Party struct {
		mu      sync.Mutex
		info    model.PartyInfo
		members map[string]*Member
		ended   bool

		statusInterval time.Duration
		stop           chan struct{}
		stopOnce       sync.Once
		onEnd          func(partyID string)
		logger         zerolog.Logger
	}
)

func New(cfg Config) *Party {
	interval := cfg.StatusInterval
	if interval <= 0 {
		interval = defaultStatusInterval
	}
	return &Party{
		info:           cfg.Info,
		members:        make(map[string]*Member),
		statusInterval: interval,
		stop:           make(chan struct{}),
		onEnd:          cfg.OnEnd,
		logger: cfg.Logger.With().
			Str("component", "party").
			Str("partyID", cfg.Info.ID).
			Logger(),
	}
}

func (p *Party) ID() string { return p.info.ID }

func (p *Party) OwnerID() string { return p.info.OwnerID }

// Snapshot returns the current authoritative playback state.
func (p *Party) Snapshot() model.PartyInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info
}

// Size returns the current member count.
func (p *Party) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.members)
}

// IsMember reports whether userID currently belongs to the party.
func (p *Party) IsMember(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.members[userID]
	return ok
}

// Run drives the periodic status tick until the party ends or ctx is
// canceled. The tick competes for the same party lock as message
// handlers, so it interleaves with them like any other message source.
func (p *Party) Run(ctx context.Context) {
	p.logger.Debug().Msg("party live")
	ticker := time.NewTicker(p.statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			p.BroadcastStatus()
		}
	}
}

// BroadcastStatus sends the authoritative snapshot to every member.
// This is the reconciliation mechanism: the periodic absolute state
// overrides any client drift.
func (p *Party) BroadcastStatus() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broadcastEventLocked(model.StatusEvent{
		Method:    model.MethodStatus,
		PartyID:   p.info.ID,
		OwnerID:   p.info.OwnerID,
		IsPlaying: p.info.IsPlaying,
		Playhead:  p.info.Playhead,
	}, "")
}

// Handle processes one decoded inbound frame from m. raw is the frame
// exactly as received; state-change events are rebroadcast verbatim.
func (p *Party) Handle(m *Member, msg protocol.Message, raw []byte) {
	p.mu.Lock()
	ended := p.dispatchLocked(m, msg, raw)
	p.mu.Unlock()

	if ended && p.onEnd != nil {
		p.onEnd(p.info.ID)
	}
}

// Detach removes m from membership after its transport closed. It is
// idempotent, and a no-op when the same user has since reconnected
// with a different session.
func (p *Party) Detach(m *Member) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeMemberLocked(m)
}

func (p *Party) dispatchLocked(m *Member, msg protocol.Message, raw []byte) bool {
	if p.ended {
		return false
	}
	// Strict joined-guard: party-scoped messages before the join
	// handshake are dropped. join itself, keepAlive and the
	// owner-gated end are exempt.
	switch msg.(type) {
	case protocol.Join, protocol.KeepAlive, protocol.End:
	default:
		if !m.joined {
			p.logger.Debug().
				Str("userID", m.userID).
				Str("method", msg.Method()).
				Msg("message from unjoined session dropped")
			return false
		}
	}

	switch v := msg.(type) {
	case protocol.Join:
		if m.joined {
			p.logger.Debug().Str("userID", m.userID).Msg("duplicate join ignored")
			return false
		}
		m.nickname = v.Nickname
		m.joined = true
		p.addMemberLocked(m)

	case protocol.Play:
		p.info.IsPlaying = true
		p.broadcastLocked(raw, m.userID)

	case protocol.Pause:
		p.info.IsPlaying = false
		p.broadcastLocked(raw, m.userID)

	case protocol.Seeked:
		p.info.Playhead = v.Playhead
		p.broadcastLocked(raw, m.userID)

	case protocol.Update:
		// Silent periodic sync source, no broadcast.
		p.info.Playhead = v.Playhead

	case protocol.Chat:
		// No exclusion: the sender sees its own message rendered from
		// the authoritative broadcast.
		p.broadcastEventLocked(model.ChatEvent{
			Method:    model.MethodChat,
			UserID:    m.userID,
			Nickname:  m.nickname,
			PartyID:   p.info.ID,
			Message:   v.Message,
			Timestamp: time.Now().UnixMilli(),
		}, "")

	case protocol.VoiceEnabled:
		m.voiceEnabled = true
		p.broadcastLocked(raw, m.userID)

	case protocol.VoiceDisabled:
		m.voiceEnabled = false
		p.broadcastLocked(raw, m.userID)

	case protocol.VoiceSignal:
		p.sendToMemberLocked(v.To, raw)

	case protocol.End:
		if m.userID != p.info.OwnerID {
			p.logger.Debug().
				Str("userID", m.userID).
				Msg("end from non-owner ignored")
			return false
		}
		p.endLocked()
		return true

	case protocol.KeepAlive:
		// Connection-scoped, consumed by the transport layer.
	}
	return false
}

func (p *Party) addMemberLocked(m *Member) {
	p.members[m.userID] = m

	ack, err := json.Marshal(model.JoinAck{
		Method: model.MethodJoinAck,
		Party:  p.info,
	})
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to marshal join ack")
	} else if sendErr := m.transport.Send(ack); sendErr != nil {
		p.logger.Error().Err(sendErr).
			Str("userID", m.userID).
			Msg("failed to send join ack")
	}

	p.broadcastEventLocked(model.MemberEvent{
		Method:   model.MethodMemberJoined,
		Nickname: m.nickname,
	}, m.userID)

	p.logger.Debug().
		Str("userID", m.userID).
		Str("nickname", m.nickname).
		Msg("member joined")
}

func (p *Party) removeMemberLocked(m *Member) {
	if current, ok := p.members[m.userID]; !ok || current != m {
		return
	}
	delete(p.members, m.userID)

	p.broadcastEventLocked(model.MemberEvent{
		Method:   model.MethodMemberLeft,
		Nickname: m.nickname,
	}, "")

	if m.voiceEnabled {
		m.voiceEnabled = false
		p.broadcastEventLocked(model.VoiceStateEvent{
			Method:  model.MethodVoiceDisabled,
			UserID:  m.userID,
			PartyID: p.info.ID,
		}, "")
	}

	p.logger.Debug().
		Str("userID", m.userID).
		Str("nickname", m.nickname).
		Msg("member left")
}

// broadcastLocked fans data out to every member except excludeUserID.
// Recipients whose transport fails are evicted after the iteration
// completes; a single bad recipient never aborts delivery to the rest.
func (p *Party) broadcastLocked(data []byte, excludeUserID string) {
	var failed []*Member
	for userID, m := range p.members {
		if userID == excludeUserID {
			continue
		}
		if err := m.transport.Send(data); err != nil {
			p.logger.Warn().Err(err).
				Str("userID", userID).
				Msg("send failed, evicting member")
			failed = append(failed, m)
		}
	}
	for _, m := range failed {
		p.removeMemberLocked(m)
	}
}

func (p *Party) broadcastEventLocked(event any, excludeUserID string) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to marshal event")
		return
	}
	p.broadcastLocked(data, excludeUserID)
}

// sendToMemberLocked delivers data to a single named recipient,
// silently dropping it when the recipient is not a current member.
func (p *Party) sendToMemberLocked(userID string, data []byte) {
	m, ok := p.members[userID]
	if !ok {
		p.logger.Trace().
			Str("dst", userID).
			Msg("cannot forward, dst not a member")
		return
	}
	if err := m.transport.Send(data); err != nil {
		p.logger.Warn().Err(err).
			Str("dst", userID).
			Msg("forward failed, evicting member")
		p.removeMemberLocked(m)
	}
}

func (p *Party) endLocked() {
	p.ended = true
	p.broadcastEventLocked(model.PartyEndedEvent{
		Method:  model.MethodPartyEnded,
		PartyID: p.info.ID,
	}, "")

	for _, m := range p.members {
		if err := m.transport.Close(); err != nil {
			p.logger.Debug().Err(err).
				Str("userID", m.userID).
				Msg("failed to close member transport")
		}
	}
	p.members = make(map[string]*Member)

	p.stopOnce.Do(func() { close(p.stop) })
	p.logger.Info().Msg("party ended by owner")
}
