package store

import (
	"path/filepath"
	"sort"
	"sync"

	"cipherclients/internal/domain"
)

const (
	signedPreKeysFile  = "spk_pairs.json"
	oneTimePreKeysFile = "opk_pairs.json"
	preKeyMetaFile     = "prekey_meta.json"
)

// PrekeyFileStore persists signed and one-time pre-keys of the local device.
type PrekeyFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewPrekeyFileStore returns a PrekeyFileStore rooted at dir.
func NewPrekeyFileStore(dir string) *PrekeyFileStore {
	return &PrekeyFileStore{dir: dir}
}

type signedPreKeyRecord struct {
	Priv domain.X25519Private `json:"priv"`
	Pub  domain.X25519Public  `json:"pub"`
	Sig  []byte               `json:"sig"`
}

type oneTimePreKeyRecord struct {
	Priv domain.X25519Private `json:"priv"`
	Pub  domain.X25519Public  `json:"pub"`
}

type preKeyMeta struct {
	Current domain.SignedPreKeyID `json:"current_signed_pre_key_id"`
}

func (s *PrekeyFileStore) file(name string) string { return filepath.Join(s.dir, name) }

// SaveSignedPreKey stores a signed pre-key by id.
func (s *PrekeyFileStore) SaveSignedPreKey(
	id domain.SignedPreKeyID,
	priv domain.X25519Private,
	pub domain.X25519Public,
	sig []byte,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return updateJSON(s.file(signedPreKeysFile), func(m map[domain.SignedPreKeyID]signedPreKeyRecord) bool {
		m[id] = signedPreKeyRecord{Priv: priv, Pub: pub, Sig: sig}
		return true
	})
}

// LoadSignedPreKey retrieves a signed pre-key by id.
func (s *PrekeyFileStore) LoadSignedPreKey(
	id domain.SignedPreKeyID,
) (
	priv domain.X25519Private,
	pub domain.X25519Public,
	sig []byte,
	ok bool,
	err error,
) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := loadJSONMap[domain.SignedPreKeyID, signedPreKeyRecord](s.file(signedPreKeysFile))
	if err != nil {
		return priv, pub, nil, false, err
	}
	rec, ok := m[id]
	return rec.Priv, rec.Pub, rec.Sig, ok, nil
}

// SaveOneTimePreKeys merges pairs into the stored set.
func (s *PrekeyFileStore) SaveOneTimePreKeys(pairs []domain.OneTimePreKeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return updateJSON(s.file(oneTimePreKeysFile), func(m map[domain.OneTimePreKeyID]oneTimePreKeyRecord) bool {
		for _, p := range pairs {
			m[p.ID] = oneTimePreKeyRecord{Priv: p.Priv, Pub: p.Pub}
		}
		return len(pairs) > 0
	})
}

// ConsumeOneTimePreKey removes and returns a single one-time pre-key.
func (s *PrekeyFileStore) ConsumeOneTimePreKey(
	id domain.OneTimePreKeyID,
) (
	priv domain.X25519Private,
	pub domain.X25519Public,
	ok bool,
	err error,
) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec oneTimePreKeyRecord
	err = updateJSON(s.file(oneTimePreKeysFile), func(m map[domain.OneTimePreKeyID]oneTimePreKeyRecord) bool {
		rec, ok = m[id]
		delete(m, id)
		return ok
	})
	if err != nil {
		return priv, pub, false, err
	}
	return rec.Priv, rec.Pub, ok, nil
}

// ListOneTimePreKeyPublics returns the public halves sorted by id.
func (s *PrekeyFileStore) ListOneTimePreKeyPublics() ([]domain.OneTimePreKeyPublic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := loadJSONMap[domain.OneTimePreKeyID, oneTimePreKeyRecord](s.file(oneTimePreKeysFile))
	if err != nil {
		return nil, err
	}
	out := make([]domain.OneTimePreKeyPublic, 0, len(m))
	for id, rec := range m {
		out = append(out, domain.OneTimePreKeyPublic{ID: id, Pub: rec.Pub})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SetCurrentSignedPreKeyID records which signed pre-key is published.
func (s *PrekeyFileStore) SetCurrentSignedPreKeyID(id domain.SignedPreKeyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return writeJSON(s.file(preKeyMetaFile), preKeyMeta{Current: id})
}

// CurrentSignedPreKeyID returns the published signed pre-key id.
func (s *PrekeyFileStore) CurrentSignedPreKeyID() (domain.SignedPreKeyID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var meta preKeyMeta
	if err := readJSON(s.file(preKeyMetaFile), &meta); err != nil {
		return "", false, err
	}
	return meta.Current, meta.Current != "", nil
}

var _ domain.PreKeyStore = (*PrekeyFileStore)(nil)
