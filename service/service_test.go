package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/couchparty/relay/party"
	"github.com/couchparty/relay/protocol"
	store "github.com/couchparty/relay/storage/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTransport struct{}

func (mockTransport) Send([]byte) error { return nil }
func (mockTransport) Close() error      { return nil }

type mockNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *mockNotifier) PartyTerminated(_ context.Context, partyID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, partyID)
}

func (n *mockNotifier) terminated() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

func newTestService(notifier TerminationNotifier) *Service {
	logger := zerolog.Nop()
	return NewService(Config{
		Store:          store.NewStore(),
		Notifier:       notifier,
		StatusInterval: time.Hour,
		Logger:         &logger,
	})
}

func TestService_CreateParty(t *testing.T) {
	tests := []struct {
		name     string
		partyID  string
		ownerID  string
		videoSrc string
		wantErr  error
	}{
		{
			name:     "valid",
			partyID:  "p1",
			ownerID:  "owner",
			videoSrc: "clip.mp4",
		},
		{
			name:     "missing owner",
			partyID:  "p1",
			videoSrc: "clip.mp4",
			wantErr:  ErrNoOwner,
		},
		{
			name:     "missing party id",
			ownerID:  "owner",
			videoSrc: "clip.mp4",
			wantErr:  ErrIncomplete,
		},
		{
			name:    "missing video src",
			partyID: "p1",
			ownerID: "owner",
			wantErr: ErrIncomplete,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(nil)

			err := svc.CreateParty(tt.partyID, tt.ownerID, tt.videoSrc)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			p, err := svc.Party(tt.partyID)
			require.NoError(t, err)
			assert.Equal(t, tt.partyID, p.ID())
			assert.Equal(t, tt.ownerID, p.OwnerID())
		})
	}
}

func TestService_CreatePartyDuplicate(t *testing.T) {
	svc := newTestService(nil)

	require.NoError(t, svc.CreateParty("p1", "owner", "clip.mp4"))
	err := svc.CreateParty("p1", "other-owner", "other.mp4")
	assert.ErrorIs(t, err, ErrCreate)
}

func TestService_PartyNotFound(t *testing.T) {
	svc := newTestService(nil)

	p, err := svc.Party("nope")
	assert.ErrorIs(t, err, ErrGet)
	assert.Nil(t, p)
}

func TestService_OwnerEndRemovesPartyAndNotifies(t *testing.T) {
	notifier := &mockNotifier{}
	svc := newTestService(notifier)

	require.NoError(t, svc.CreateParty("p1", "owner", "clip.mp4"))
	p, err := svc.Party("p1")
	require.NoError(t, err)

	owner := party.NewMember("owner", mockTransport{})
	p.Handle(owner, protocol.Join{Nickname: "alice"}, []byte(`{"method":"join","nickname":"alice"}`))
	p.Handle(owner, protocol.End{}, []byte(`{"method":"end"}`))

	_, err = svc.Party("p1")
	assert.ErrorIs(t, err, ErrGet)

	require.Eventually(t, func() bool {
		calls := notifier.terminated()
		return len(calls) == 1 && calls[0] == "p1"
	}, time.Second, 10*time.Millisecond)

	// The identifier is free for reuse only after explicit termination.
	assert.NoError(t, svc.CreateParty("p1", "owner", "clip.mp4"))
}

func TestService_Stats(t *testing.T) {
	svc := newTestService(nil)
	require.NoError(t, svc.CreateParty("p1", "owner", "clip.mp4"))
	require.NoError(t, svc.CreateParty("p2", "owner", "clip.mp4"))

	parties, members := svc.Stats()
	assert.Equal(t, 2, parties)
	assert.Zero(t, members)
}
