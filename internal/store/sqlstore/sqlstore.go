package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cipherclients/internal/model"
)

// ErrNewerSchema is returned by Load for databases written by a newer
// build.
var ErrNewerSchema = errors.New("sqlstore: database schema is newer than supported")

// Store is a model.Persister backed by SQLite.
type Store struct {
	DB  *gorm.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at dsn and migrates it.
// Use ":memory:" for a private in-memory database.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlstore: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(allModels()...); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return &Store{DB: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn inside one database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.DB.WithContext(ctx).Transaction(fn)
}

// Save replaces the stored graph with snap.
func (s *Store) Save(ctx context.Context, snap model.Snapshot) error {
	return s.WithTx(ctx, func(tx *gorm.DB) error {
		for _, m := range allModels() {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
				return fmt.Errorf("sqlstore: clear: %w", err)
			}
		}

		meta := metaRow{
			ID:            1,
			SchemaVersion: SchemaVersion,
			SelfUser:      snap.SelfUser,
			SelfDevice:    snap.SelfDevice,
			SavedAt:       s.now().UTC(),
		}
		if err := tx.Create(&meta).Error; err != nil {
			return fmt.Errorf("sqlstore: meta: %w", err)
		}

		users := make([]userRow, 0, len(snap.Users))
		for i, u := range snap.Users {
			users = append(users, userRow{Seq: i + 1, ID: u.ID, Name: u.Name})
		}
		devices := make([]deviceRow, 0, len(snap.Devices))
		for _, d := range snap.Devices {
			devices = append(devices, toDeviceRow(d))
		}
		convs := make([]conversationRow, 0, len(snap.Conversations))
		for i, c := range snap.Conversations {
			convs = append(convs, conversationRow{
				Seq:           i + 1,
				ID:            c.ID,
				Type:          c.Type,
				Name:          c.Name,
				Archived:      c.Archived,
				SecurityLevel: c.SecurityLevel,
				Participants:  c.Participants,
				DraftData:     c.DraftData,
			})
		}
		messages := make([]messageRow, 0, len(snap.Messages))
		for i, m := range snap.Messages {
			messages = append(messages, messageRow{
				Seq:            i + 1,
				ID:             m.ID,
				ConversationID: m.Conversation,
				Kind:           m.Kind,
				SenderID:       m.Sender,
				Text:           m.Text,
				Timestamp:      m.Timestamp,
			})
		}
		relations := make([]relationRow, 0, len(snap.Relations))
		for i, r := range snap.Relations {
			relations = append(relations, relationRow{Seq: i + 1, From: r.From, To: r.To, Kind: r.Kind})
		}

		if err := insert(tx, users); err != nil {
			return err
		}
		if err := insert(tx, devices); err != nil {
			return err
		}
		if err := insert(tx, convs); err != nil {
			return err
		}
		if err := insert(tx, messages); err != nil {
			return err
		}
		return insert(tx, relations)
	})
}

func insert[T any](tx *gorm.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	if err := tx.CreateInBatches(rows, 200).Error; err != nil {
		var zero T
		return fmt.Errorf("sqlstore: insert %T: %w", zero, err)
	}
	return nil
}

// Snapshot reads the stored graph. An empty database yields an empty
// snapshot.
func (s *Store) Snapshot(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot
	db := s.DB.WithContext(ctx)

	var metas []metaRow
	if err := db.Limit(1).Find(&metas).Error; err != nil {
		return snap, fmt.Errorf("sqlstore: read meta: %w", err)
	}
	if len(metas) == 0 {
		return snap, nil
	}
	if metas[0].SchemaVersion > SchemaVersion {
		return snap, fmt.Errorf("%w: %d", ErrNewerSchema, metas[0].SchemaVersion)
	}
	snap.SelfUser = metas[0].SelfUser
	snap.SelfDevice = metas[0].SelfDevice

	var users []userRow
	if err := db.Order("seq").Find(&users).Error; err != nil {
		return snap, fmt.Errorf("sqlstore: read users: %w", err)
	}
	for _, u := range users {
		snap.Users = append(snap.Users, model.UserRecord{ID: u.ID, Name: u.Name})
	}

	var devices []deviceRow
	if err := db.Order("object_id").Find(&devices).Error; err != nil {
		return snap, fmt.Errorf("sqlstore: read devices: %w", err)
	}
	for _, d := range devices {
		snap.Devices = append(snap.Devices, d.record())
	}

	var convs []conversationRow
	if err := db.Order("seq").Find(&convs).Error; err != nil {
		return snap, fmt.Errorf("sqlstore: read conversations: %w", err)
	}
	for _, c := range convs {
		snap.Conversations = append(snap.Conversations, model.ConversationRecord{
			ID:            c.ID,
			Type:          c.Type,
			Name:          c.Name,
			Archived:      c.Archived,
			SecurityLevel: c.SecurityLevel,
			Participants:  c.Participants,
			DraftData:     c.DraftData,
		})
	}

	var messages []messageRow
	if err := db.Order("seq").Find(&messages).Error; err != nil {
		return snap, fmt.Errorf("sqlstore: read messages: %w", err)
	}
	for _, m := range messages {
		snap.Messages = append(snap.Messages, model.MessageRecord{
			ID:           m.ID,
			Conversation: m.ConversationID,
			Kind:         m.Kind,
			Sender:       m.SenderID,
			Text:         m.Text,
			Timestamp:    m.Timestamp,
		})
	}

	var relations []relationRow
	if err := db.Order("seq").Find(&relations).Error; err != nil {
		return snap, fmt.Errorf("sqlstore: read relations: %w", err)
	}
	for _, r := range relations {
		snap.Relations = append(snap.Relations, model.RelationRecord{From: r.From, To: r.To, Kind: r.Kind})
	}
	return snap, nil
}

// Load restores the stored graph into oc, which must be empty.
func (s *Store) Load(ctx context.Context, oc *model.ObjectContext) error {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := oc.Restore(snap); err != nil {
		return fmt.Errorf("sqlstore: restore: %w", err)
	}
	return nil
}

var _ model.Persister = (*Store)(nil)
