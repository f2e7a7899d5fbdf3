package interfaces

import (
	"context"

	domaintypes "cipherclients/internal/domain/types"
)

// RelayClient publishes and fetches pre-key bundles.
type RelayClient interface {
	RegisterPreKeyBundle(ctx context.Context, bundle domaintypes.PreKeyBundle) error
	FetchPreKeyBundle(
		ctx context.Context,
		device domaintypes.DeviceID,
	) (domaintypes.PreKeyBundle, error)
}
