package store

import (
	"path/filepath"
	"sort"
	"sync"

	"cipherclients/internal/domain"
)

const sessionsFile = "sessions.json"

// SessionFileStore persists pairwise session records keyed by remote device.
type SessionFileStore struct {
	path string
	mu   sync.Mutex
}

// NewSessionFileStore returns a SessionFileStore rooted at dir.
func NewSessionFileStore(dir string) *SessionFileStore {
	return &SessionFileStore{path: filepath.Join(dir, sessionsFile)}
}

// SaveSession writes rec for device, replacing any previous record.
func (s *SessionFileStore) SaveSession(device domain.DeviceID, rec domain.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return updateJSON(s.path, func(m map[domain.DeviceID]domain.SessionRecord) bool {
		m[device] = rec
		return true
	})
}

// LoadSession retrieves the record for device.
func (s *SessionFileStore) LoadSession(device domain.DeviceID) (domain.SessionRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := loadJSONMap[domain.DeviceID, domain.SessionRecord](s.path)
	if err != nil {
		return domain.SessionRecord{}, false, err
	}
	rec, ok := m[device]
	return rec, ok, nil
}

// DeleteSession removes the record for device. Deleting a missing record
// is not an error.
func (s *SessionFileStore) DeleteSession(device domain.DeviceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return updateJSON(s.path, func(m map[domain.DeviceID]domain.SessionRecord) bool {
		if _, ok := m[device]; !ok {
			return false
		}
		delete(m, device)
		return true
	})
}

// ListSessions returns the devices with a stored record, sorted.
func (s *SessionFileStore) ListSessions() ([]domain.DeviceID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := loadJSONMap[domain.DeviceID, domain.SessionRecord](s.path)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DeviceID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

var _ domain.SessionStore = (*SessionFileStore)(nil)
