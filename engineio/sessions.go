package engineio

import "sync"

// sessions is the registry of open connections keyed by session id.
type sessions struct {
	ʘ sync.RWMutex
	s map[SessionID]*Connection
}

func newSessions() *sessions {
	return &sessions{s: make(map[SessionID]*Connection)}
}

func (s *sessions) Set(c *Connection) {
	s.ʘ.Lock()
	s.s[c.ID()] = c
	s.ʘ.Unlock()
}

func (s *sessions) Get(id SessionID) (*Connection, error) {
	s.ʘ.RLock()
	defer s.ʘ.RUnlock()

	if c, ok := s.s[id]; ok {
		return c, nil
	}
	return nil, ErrUnknownSessionID
}

// Delete removes id only while it still maps to c.
func (s *sessions) Delete(id SessionID, c *Connection) {
	s.ʘ.Lock()
	if s.s[id] == c {
		delete(s.s, id)
	}
	s.ʘ.Unlock()
}

func (s *sessions) Len() int {
	s.ʘ.RLock()
	defer s.ʘ.RUnlock()
	return len(s.s)
}

func (s *sessions) All() []*Connection {
	s.ʘ.RLock()
	defer s.ʘ.RUnlock()

	all := make([]*Connection, 0, len(s.s))
	for _, c := range s.s {
		all = append(all, c)
	}
	return all
}
