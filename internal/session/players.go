package session

import (
	"sync"

	gocache "github.com/patrickmn/go-cache"
)

// PlayerSessionRecord describes one connected player. PlayerSessionID is
// empty unless the backend accepted the player's session ticket.
type PlayerSessionRecord struct {
	PlayerID        string
	PlayerSessionID string
	Team            string
}

// Players is the registry of connected players keyed by connection id.
// Entries never expire; they are removed when the connection closes.
type Players struct {
	// mu makes Remove an atomic get-and-delete.
	mu    sync.Mutex
	cache *gocache.Cache
}

func NewPlayers() *Players {
	return &Players{cache: gocache.New(gocache.NoExpiration, 0)}
}

func (p *Players) Put(connID string, record *PlayerSessionRecord) {
	p.cache.Set(connID, record, gocache.NoExpiration)
}

func (p *Players) Get(connID string) (*PlayerSessionRecord, bool) {
	v, ok := p.cache.Get(connID)
	if !ok {
		return nil, false
	}
	return v.(*PlayerSessionRecord), true
}

// Remove deletes and returns the record for connID. Only the first call for
// a connection finds it.
func (p *Players) Remove(connID string) (*PlayerSessionRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	record, ok := p.Get(connID)
	if ok {
		p.cache.Delete(connID)
	}
	return record, ok
}

// NumPlayers is the number of connected players.
func (p *Players) NumPlayers() int {
	return p.cache.ItemCount()
}
