package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"cipherclients/internal/domain"
	"cipherclients/internal/keystore"
	"cipherclients/internal/model"
	"cipherclients/internal/observability/logging"
	"cipherclients/internal/relay"
	"cipherclients/internal/security"
	identitysvc "cipherclients/internal/services/identity"
	prekeysvc "cipherclients/internal/services/prekey"
	"cipherclients/internal/services/registry"
	sessionsvc "cipherclients/internal/services/session"
	trustsvc "cipherclients/internal/services/trust"
	"cipherclients/internal/store"
	"cipherclients/internal/store/sqlstore"
	"cipherclients/internal/syncctx"
)

const objectsFile = "objects.db"

// Wire bundles all stores, services, and clients for the CLI.
type Wire struct {
	Config Config
	Log    logging.Logger

	IdentityStore domain.IdentityStore
	Identity      *identitysvc.Service
	PreKeys       *prekeysvc.Service
	Relay         domain.RelayClient

	Keys       *keystore.KeyStore
	DB         *sqlstore.Store
	Objects    *model.ObjectContext
	Queue      *syncctx.Queue
	Classifier security.Classifier
	Sessions   *sessionsvc.Service
	Trust      *trustsvc.Service
	Registry   *registry.Registry
}

// NewWire constructs the dependency graph from cfg and loads the stored
// object graph. passphrase unlocks the identity when a session operation
// first needs it.
func NewWire(ctx context.Context, cfg Config, passphrase string, log logging.Logger) (*Wire, error) {
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, fmt.Errorf("app: create home: %w", err)
	}

	identityStore := store.NewIdentityFileStore(cfg.Home)
	prekeyStore := store.NewPrekeyFileStore(cfg.Home)
	sessionStore := store.NewSessionFileStore(cfg.Home)

	db, err := sqlstore.Open(filepath.Join(cfg.Home, objectsFile))
	if err != nil {
		return nil, err
	}
	oc := model.NewObjectContext(model.WithPersister(db))
	if err := db.Load(ctx, oc); err != nil {
		_ = db.Close()
		return nil, err
	}

	rc := relay.NewHTTP(cfg.RelayURL)
	keys := keystore.New(keystore.FromIdentityStore(identityStore, passphrase), sessionStore, log)
	queue := syncctx.NewQueue()
	classifier := security.NewLevelClassifier(oc, log)
	sessions := sessionsvc.New(oc, keys, queue, log)

	return &Wire{
		Config:        cfg,
		Log:           log,
		IdentityStore: identityStore,
		Identity:      identitysvc.New(identityStore),
		PreKeys:       prekeysvc.New(identityStore, prekeyStore, rc, log),
		Relay:         rc,
		Keys:          keys,
		DB:            db,
		Objects:       oc,
		Queue:         queue,
		Classifier:    classifier,
		Sessions:      sessions,
		Trust:         trustsvc.New(oc, classifier, log),
		Registry:      registry.New(oc, sessions, classifier, log),
	}, nil
}

// SelfDevice returns the registered self device or an error naming the
// command that creates it.
func (w *Wire) SelfDevice() (*model.Device, error) {
	self := w.Objects.SelfDevice()
	if self == nil {
		return nil, errors.New("no self device; run register first")
	}
	return self, nil
}

// Bootstrap creates the self user and self device on first registration.
// An existing self device is returned unchanged when it has the same id.
func (w *Wire) Bootstrap(ctx context.Context, name string, device domain.DeviceID) (*model.Device, error) {
	if device.IsZero() {
		return nil, errors.New("app: empty device id")
	}
	if self := w.Objects.SelfDevice(); self != nil {
		if self.RemoteID() != device {
			return nil, fmt.Errorf("app: already registered as %s", self.RemoteID())
		}
		return self, nil
	}

	user := w.Objects.SelfUser()
	if user == nil {
		user = w.Objects.InsertUser(uuid.New(), name)
		w.Objects.SetSelfUser(user)
	}
	self := w.Objects.InsertDevice(user, device)
	self.SetAttributes(model.Attributes{Type: model.DeviceTypePermanent, Class: "desktop"})
	w.Objects.SetSelfDevice(self)

	if conv := w.Objects.SelfConversation(); conv == nil {
		w.Objects.InsertConversation(user.ID(), model.ConversationSelf, name).AddParticipants(user)
	}
	if err := w.Sessions.CacheLocalFingerprint(ctx, self); err != nil {
		return nil, err
	}
	return self, w.Objects.Save(ctx)
}

// Close saves the object graph and releases resources.
func (w *Wire) Close(ctx context.Context) error {
	w.Queue.Close()
	errs := []error{w.Objects.Save(ctx), w.Objects.Close(), w.DB.Close()}
	return errors.Join(errs...)
}
