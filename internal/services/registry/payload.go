package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cipherclients/internal/domain"
	"cipherclients/internal/model"
)

// ErrInvalidPayload is returned for payloads without an id or a type.
var ErrInvalidPayload = errors.New("registry: invalid device payload")

// Location is where a device was activated.
type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// DevicePayload is a device as described by the backend.
type DevicePayload struct {
	ID       domain.DeviceID  `json:"id"`
	Type     model.DeviceType `json:"type"`
	Label    string           `json:"label,omitempty"`
	Address  string           `json:"address,omitempty"`
	Model    string           `json:"model,omitempty"`
	Class    string           `json:"class,omitempty"`
	Time     *time.Time       `json:"time,omitempty"`
	Location *Location        `json:"location,omitempty"`
}

// ParsePayload decodes a single device payload.
func ParsePayload(b []byte) (DevicePayload, error) {
	var p DevicePayload
	if err := json.Unmarshal(b, &p); err != nil {
		return DevicePayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return p, p.validate()
}

func (p DevicePayload) validate() error {
	if p.ID.IsZero() || p.Type == "" {
		return ErrInvalidPayload
	}
	return nil
}

func (p DevicePayload) attributes() model.Attributes {
	a := model.Attributes{
		Type:              p.Type,
		Label:             p.Label,
		Model:             p.Model,
		Class:             p.Class,
		ActivationAddress: p.Address,
	}
	if p.Time != nil {
		t := p.Time.UTC()
		a.ActivationDate = &t
	}
	if p.Location != nil {
		a.Latitude = p.Location.Latitude
		a.Longitude = p.Location.Longitude
	}
	return a
}
