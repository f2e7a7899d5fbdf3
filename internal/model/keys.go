package model

import "strconv"

// ObjectID identifies a device locally. It is stable for the lifetime of the
// persisted graph and unrelated to the remote device identifier.
type ObjectID uint64

func (id ObjectID) String() string { return strconv.FormatUint(uint64(id), 10) }

// Names of device attributes whose local changes must be uploaded.
const (
	KeyMarkedForDeletion          = "markedToDelete"
	KeyNumberOfKeysRemaining      = "numberOfKeysRemaining"
	KeyMissingClients             = "missingClients"
	KeyNeedsToUploadSignalingKeys = "needsToUploadSignalingKeys"
)
