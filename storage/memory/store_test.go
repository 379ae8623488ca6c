package memory

import (
	"testing"
	"time"

	"github.com/couchparty/relay/model"
	"github.com/couchparty/relay/party"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newParty(id string) *party.Party {
	logger := zerolog.Nop()
	return party.New(party.Config{
		Info: model.PartyInfo{
			ID:      id,
			OwnerID: "owner",
			Src:     "clip.mp4",
		},
		StatusInterval: time.Hour,
		Logger:         &logger,
	})
}

func TestStore_PutGet(t *testing.T) {
	ms := NewStore()

	p := newParty("p1")
	require.NoError(t, ms.Put(p))

	got, err := ms.Get("p1")
	require.NoError(t, err)
	assert.Same(t, p, got)
}

func TestStore_PutDuplicate(t *testing.T) {
	ms := NewStore()

	require.NoError(t, ms.Put(newParty("p1")))
	err := ms.Put(newParty("p1"))
	assert.ErrorIs(t, err, ErrPartyExists)
}

func TestStore_GetMissing(t *testing.T) {
	ms := NewStore()

	got, err := ms.Get("nope")
	assert.ErrorIs(t, err, ErrPartyNotFound)
	assert.Nil(t, got)
}

func TestStore_Delete(t *testing.T) {
	ms := NewStore()

	require.NoError(t, ms.Put(newParty("p1")))
	require.NoError(t, ms.Delete("p1"))

	_, err := ms.Get("p1")
	assert.ErrorIs(t, err, ErrPartyNotFound)

	assert.ErrorIs(t, ms.Delete("p1"), ErrPartyNotFound)
}

func TestStore_Stats(t *testing.T) {
	ms := NewStore()
	parties, members := ms.Stats()
	assert.Zero(t, parties)
	assert.Zero(t, members)

	require.NoError(t, ms.Put(newParty("p1")))
	require.NoError(t, ms.Put(newParty("p2")))

	parties, members = ms.Stats()
	assert.Equal(t, 2, parties)
	assert.Zero(t, members)
}
