package sqlstore

import (
	"time"

	"github.com/google/uuid"

	"cipherclients/internal/domain"
	"cipherclients/internal/model"
)

// SchemaVersion is stored with every save.
const SchemaVersion = 1

type metaRow struct {
	ID            uint      `gorm:"primaryKey"`
	SchemaVersion int       `gorm:"not null"`
	SelfUser      uuid.UUID `gorm:"type:text"`
	SelfDevice    model.ObjectID
	SavedAt       time.Time `gorm:"not null"`
}

func (metaRow) TableName() string { return "meta" }

type userRow struct {
	Seq  int       `gorm:"primaryKey;autoIncrement:false"`
	ID   uuid.UUID `gorm:"type:text;uniqueIndex"`
	Name string
}

func (userRow) TableName() string { return "users" }

type deviceRow struct {
	ObjectID model.ObjectID  `gorm:"primaryKey;autoIncrement:false"`
	RemoteID domain.DeviceID `gorm:"index"`
	UserID   uuid.UUID       `gorm:"type:text;index"`

	Type              model.DeviceType
	Label             string
	Model             string
	Class             string
	ActivationAddress string
	ActivationDate    *time.Time
	Latitude          float64
	Longitude         float64

	Fingerprint          []byte
	KeysRemaining        int32
	HasSignalingKeys     bool
	SignalingVerifyKey   []byte
	SignalingDecryptKey  []byte
	NeedsToUploadSigKeys bool

	MarkedForDeletion bool
	NeedsToNotifyUser bool
	FailedSession     bool

	Missing         []model.ObjectID `gorm:"serializer:json"`
	PendingMessages []uuid.UUID      `gorm:"serializer:json"`
	ModifiedKeys    []string         `gorm:"serializer:json"`
}

func (deviceRow) TableName() string { return "devices" }

type conversationRow struct {
	Seq           int       `gorm:"primaryKey;autoIncrement:false"`
	ID            uuid.UUID `gorm:"type:text;uniqueIndex"`
	Type          model.ConversationType
	Name          string
	Archived      bool
	SecurityLevel model.SecurityLevel
	Participants  []uuid.UUID `gorm:"serializer:json"`
	DraftData     []byte
}

func (conversationRow) TableName() string { return "conversations" }

type messageRow struct {
	Seq            int       `gorm:"primaryKey;autoIncrement:false"`
	ID             uuid.UUID `gorm:"type:text;uniqueIndex"`
	ConversationID uuid.UUID `gorm:"type:text;index"`
	Kind           model.MessageKind
	SenderID       uuid.UUID `gorm:"type:text"`
	Text           string
	Timestamp      time.Time
}

func (messageRow) TableName() string { return "messages" }

type relationRow struct {
	Seq  int            `gorm:"primaryKey;autoIncrement:false"`
	From model.ObjectID `gorm:"column:from_device;index"`
	To   model.ObjectID `gorm:"column:to_device"`
	Kind model.RelationKind
}

func (relationRow) TableName() string { return "relations" }

func allModels() []any {
	return []any{&metaRow{}, &userRow{}, &deviceRow{}, &conversationRow{}, &messageRow{}, &relationRow{}}
}

func toDeviceRow(r model.DeviceRecord) deviceRow {
	row := deviceRow{
		ObjectID:             r.ObjectID,
		RemoteID:             r.RemoteID,
		UserID:               r.User,
		Type:                 r.Attributes.Type,
		Label:                r.Attributes.Label,
		Model:                r.Attributes.Model,
		Class:                r.Attributes.Class,
		ActivationAddress:    r.Attributes.ActivationAddress,
		ActivationDate:       r.Attributes.ActivationDate,
		Latitude:             r.Attributes.Latitude,
		Longitude:            r.Attributes.Longitude,
		Fingerprint:          r.Fingerprint,
		KeysRemaining:        r.KeysRemaining,
		NeedsToUploadSigKeys: r.NeedsToUploadSignalingKeys,
		MarkedForDeletion:    r.MarkedForDeletion,
		NeedsToNotifyUser:    r.NeedsToNotifyUser,
		FailedSession:        r.FailedToEstablishSession,
		Missing:              r.Missing,
		PendingMessages:      r.PendingMessages,
		ModifiedKeys:         r.ModifiedKeys,
	}
	if r.SignalingKeys != nil {
		row.HasSignalingKeys = true
		row.SignalingVerifyKey = r.SignalingKeys.VerificationKey
		row.SignalingDecryptKey = r.SignalingKeys.DecryptionKey
	}
	return row
}

func (row deviceRow) record() model.DeviceRecord {
	r := model.DeviceRecord{
		ObjectID: row.ObjectID,
		RemoteID: row.RemoteID,
		User:     row.UserID,
		Attributes: model.Attributes{
			Type:              row.Type,
			Label:             row.Label,
			Model:             row.Model,
			Class:             row.Class,
			ActivationAddress: row.ActivationAddress,
			ActivationDate:    row.ActivationDate,
			Latitude:          row.Latitude,
			Longitude:         row.Longitude,
		},
		Fingerprint:                row.Fingerprint,
		KeysRemaining:              row.KeysRemaining,
		NeedsToUploadSignalingKeys: row.NeedsToUploadSigKeys,
		MarkedForDeletion:          row.MarkedForDeletion,
		NeedsToNotifyUser:          row.NeedsToNotifyUser,
		FailedToEstablishSession:   row.FailedSession,
		Missing:                    row.Missing,
		PendingMessages:            row.PendingMessages,
		ModifiedKeys:               row.ModifiedKeys,
	}
	if row.HasSignalingKeys {
		r.SignalingKeys = &model.SignalingKeys{
			VerificationKey: row.SignalingVerifyKey,
			DecryptionKey:   row.SignalingDecryptKey,
		}
	}
	return r
}
