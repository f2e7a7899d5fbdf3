package model

import "sync"

// FailedSessionSet tracks devices whose session is known to be corrupted.
// It lives as long as its ObjectContext; after Close it is empty and
// ignores additions.
type FailedSessionSet struct {
	mu      sync.Mutex
	devices map[*Device]struct{}
	closed  bool
}

func newFailedSessionSet() *FailedSessionSet {
	return &FailedSessionSet{devices: map[*Device]struct{}{}}
}

func (s *FailedSessionSet) Add(d *Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.devices[d] = struct{}{}
}

func (s *FailedSessionSet) Remove(d *Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, d)
}

func (s *FailedSessionSet) Contains(d *Device) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.devices[d]
	return ok
}

func (s *FailedSessionSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.devices)
}

// Devices returns the members ordered by local id.
func (s *FailedSessionSet) Devices() []*Device {
	s.mu.Lock()
	m := make(map[ObjectID]*Device, len(s.devices))
	for d := range s.devices {
		m[d.objectID] = d
	}
	s.mu.Unlock()
	return sortedDevices(m)
}

func (s *FailedSessionSet) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.devices = map[*Device]struct{}{}
}
