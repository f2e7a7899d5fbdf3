// Package backup describes a local history backup: which user and device
// wrote it and with which app and schema version.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/mod/semver"

	"cipherclients/internal/domain"
	"cipherclients/internal/model"
)

var (
	// ErrUserMismatch rejects a backup written for another user.
	ErrUserMismatch = errors.New("backup: created by a different user")
	// ErrBackupFromNewerVersion rejects a backup written by a newer app.
	ErrBackupFromNewerVersion = errors.New("backup: created by a newer app version")
)

// Metadata is stored next to the backup archive.
type Metadata struct {
	Platform         string          `json:"platform"`
	AppVersion       string          `json:"appVersion"`
	ModelVersion     string          `json:"modelVersion"`
	CreationTime     time.Time       `json:"creationTime"`
	UserIdentifier   uuid.UUID       `json:"userIdentifier"`
	ClientIdentifier domain.DeviceID `json:"clientIdentifier"`
}

// New returns metadata for a backup created now on this platform.
func New(appVersion, modelVersion string, user uuid.UUID, client domain.DeviceID) Metadata {
	return Metadata{
		Platform:         runtime.GOOS,
		AppVersion:       appVersion,
		ModelVersion:     modelVersion,
		CreationTime:     time.Now().UTC().Truncate(time.Second),
		UserIdentifier:   user,
		ClientIdentifier: client,
	}
}

// FromDevice builds metadata for a backup of device. ok is false when the
// device lacks a remote id or an owner.
func FromDevice(d *model.Device, appVersion, modelVersion string) (Metadata, bool) {
	if d == nil {
		return Metadata{}, false
	}
	owner := d.User()
	id := d.RemoteID()
	if owner == nil || id.IsZero() {
		return Metadata{}, false
	}
	return New(appVersion, modelVersion, owner.ID(), id), true
}

// Write stores m as JSON at path.
func (m Metadata) Write(path string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("backup: encode: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("backup: write %s: %w", path, err)
	}
	return nil
}

// Read loads metadata written by Write.
func Read(path string) (Metadata, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("backup: read %s: %w", path, err)
	}
	var m Metadata
	if err := json.Unmarshal(b, &m); err != nil {
		return Metadata{}, fmt.Errorf("backup: decode %s: %w", path, err)
	}
	return m, nil
}

// Verify checks that the backup may be restored by user on an app running
// currentVersion. Versions that do not parse are not compared.
func (m Metadata) Verify(user uuid.UUID, currentVersion string) error {
	if m.UserIdentifier != user {
		return ErrUserMismatch
	}
	current, ok := parseVersion(currentVersion)
	if !ok {
		return nil
	}
	written, ok := parseVersion(m.AppVersion)
	if !ok {
		return nil
	}
	if current.compare(written) < 0 {
		return fmt.Errorf("%w: %s > %s", ErrBackupFromNewerVersion, m.AppVersion, currentVersion)
	}
	return nil
}

// Equal reports whether both describe the same backup.
func (m Metadata) Equal(o Metadata) bool {
	return m.Platform == o.Platform &&
		m.AppVersion == o.AppVersion &&
		m.ModelVersion == o.ModelVersion &&
		m.CreationTime.Equal(o.CreationTime) &&
		m.UserIdentifier == o.UserIdentifier &&
		m.ClientIdentifier == o.ClientIdentifier
}

// version is an app version of any number of dot-separated numeric
// components, optionally followed by a semver pre-release or build suffix.
type version struct {
	parts  []int
	suffix string
}

// parseVersion accepts "3.10", "3.09.1", "v1.2.3.4" or "1.2.3-beta.1".
func parseVersion(s string) (version, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	core, suffix := s, ""
	if i := strings.IndexAny(s, "-+"); i >= 0 {
		core, suffix = s[:i], s[i:]
	}
	if core == "" {
		return version{}, false
	}
	fields := strings.Split(core, ".")
	parts := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return version{}, false
		}
		parts[i] = n
	}
	return version{parts: parts, suffix: suffix}, true
}

// compare orders numeric components first, padding the shorter version
// with zeros. Equal cores are ordered by their suffix with semver rules, so
// "1.0-beta" precedes "1.0".
func (v version) compare(o version) int {
	for i := 0; i < max(len(v.parts), len(o.parts)); i++ {
		a, b := component(v.parts, i), component(o.parts, i)
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}
	return semver.Compare(suffixed(v.suffix), suffixed(o.suffix))
}

func component(parts []int, i int) int {
	if i < len(parts) {
		return parts[i]
	}
	return 0
}

// suffixed grafts a suffix onto a fixed core so semver can order it. An
// invalid suffix is ignored.
func suffixed(suffix string) string {
	v := "v0.0.0" + suffix
	if !semver.IsValid(v) {
		return "v0.0.0"
	}
	return v
}
