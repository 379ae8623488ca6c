// Package memory implements the process-wide party registry. Entries
// are added by the provisioning API and removed only by owner-issued
// termination; the relay never evicts a party on its own.
package memory

import (
	"errors"
	"sync"

	"github.com/couchparty/relay/party"
)

var (
	ErrPartyExists   = errors.New("party already exists")
	ErrPartyNotFound = errors.New("party is not found")
)

type Store struct {
	mx *sync.Mutex
	db map[string]*party.Party
}

func NewStore() *Store {
	return &Store{
		mx: &sync.Mutex{},
		db: make(map[string]*party.Party),
	}
}

func (ms *Store) Put(p *party.Party) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	if _, ok := ms.db[p.ID()]; ok {
		return ErrPartyExists
	}
	ms.db[p.ID()] = p
	return nil
}

func (ms *Store) Get(partyID string) (*party.Party, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	p, ok := ms.db[partyID]
	if !ok {
		return nil, ErrPartyNotFound
	}
	return p, nil
}

func (ms *Store) Delete(partyID string) error {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	if _, ok := ms.db[partyID]; !ok {
		return ErrPartyNotFound
	}
	delete(ms.db, partyID)
	return nil
}

// Stats returns the number of registered parties and the total member
// count across all of them.
func (ms *Store) Stats() (parties, members int) {
	ms.mx.Lock()
	list := make([]*party.Party, 0, len(ms.db))
	for _, p := range ms.db {
		list = append(list, p)
	}
	ms.mx.Unlock()

	parties = len(list)
	for _, p := range list {
		members += p.Size()
	}
	return parties, members
}
