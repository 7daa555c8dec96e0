package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v2"

	"github.com/janispritzkau/2b2proxy/internal/profile"
)

// profileRecord is the on-disk shape of one cached profile. Token refresh,
// persistence, and the account-ownership record all belong to the excluded
// web control plane; this is the minimal file-backed stand-in a real
// deployment wires in its place.
type profileRecord struct {
	ID          uuid.UUID `yaml:"id"`
	Name        string    `yaml:"name"`
	AccessToken string    `yaml:"accessToken"`
	OwnerID     uuid.UUID `yaml:"ownerId"`

	AutoReconnect struct {
		Enabled bool          `yaml:"enabled"`
		Delay   time.Duration `yaml:"delay"`
	} `yaml:"autoReconnect"`
	AutoDisconnect struct {
		Enabled             bool    `yaml:"enabled"`
		DisableWhilePlaying bool    `yaml:"disableWhilePlaying"`
		Health              float32 `yaml:"health"`
	} `yaml:"autoDisconnect"`
	NotifyPlayers struct {
		Enabled             bool     `yaml:"enabled"`
		DisableWhilePlaying bool     `yaml:"disableWhilePlaying"`
		Ignore              []string `yaml:"ignore"`
	} `yaml:"notifyPlayers"`
	EnablePacketDumps bool `yaml:"enablePacketDumps"`
}

// profileFile is the root document a profiles.yaml file unmarshals into.
type profileFile struct {
	Profiles []profileRecord `yaml:"profiles"`
}

// profileStore is a static, file-backed read model satisfying the
// profiles-lister and OwnerVerifier roles cmd/proxy needs to wire
// internal/session and internal/downstream. The file is read once, when
// the store is loaded at startup.
type profileStore struct {
	path     string
	profiles []profile.Profile
	owners   map[uuid.UUID]uuid.UUID // profile id -> owning account uuid
}

func loadProfileStore(path string) (*profileStore, error) {
	s := &profileStore{path: path}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *profileStore) reload() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("profile store: read %s: %w", s.path, err)
	}
	var doc profileFile
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("profile store: parse %s: %w", s.path, err)
	}

	profiles := make([]profile.Profile, 0, len(doc.Profiles))
	owners := make(map[uuid.UUID]uuid.UUID, len(doc.Profiles))
	for _, r := range doc.Profiles {
		ignore := make(map[string]struct{}, len(r.NotifyPlayers.Ignore))
		for _, name := range r.NotifyPlayers.Ignore {
			ignore[name] = struct{}{}
		}
		profiles = append(profiles, profile.Profile{
			ID:          r.ID,
			Name:        r.Name,
			AccessToken: r.AccessToken,
			Settings: profile.Settings{
				AutoReconnect: profile.AutoReconnect{
					Enabled: r.AutoReconnect.Enabled,
					Delay:   r.AutoReconnect.Delay,
				},
				AutoDisconnect: profile.AutoDisconnect{
					Enabled:             r.AutoDisconnect.Enabled,
					DisableWhilePlaying: r.AutoDisconnect.DisableWhilePlaying,
					Health:              r.AutoDisconnect.Health,
				},
				NotifyPlayers: profile.NotifyPlayers{
					Enabled:             r.NotifyPlayers.Enabled,
					DisableWhilePlaying: r.NotifyPlayers.DisableWhilePlaying,
					Ignore:              ignore,
				},
				EnablePacketDumps: r.EnablePacketDumps,
			},
		})
		owners[r.ID] = r.OwnerID
	}

	s.profiles = profiles
	s.owners = owners
	return nil
}

// List implements the profiles func() []profile.Profile session.New wants.
func (s *profileStore) List() []profile.Profile {
	return s.profiles
}

// Owns implements downstream.OwnerVerifier.
func (s *profileStore) Owns(accountUUID, profileID uuid.UUID) bool {
	owner, ok := s.owners[profileID]
	return ok && owner == accountUUID
}

// refreshToken is the profile.RefreshFunc stand-in: real token refresh is
// the excluded remote-auth collaborator's job (§1). Profiles are expected
// to already carry a live access token in the store file; this reports
// success whenever the profile has a non-empty token (and failure
// otherwise) without any refresh round-trip.
func refreshToken(p *profile.Profile) bool {
	return p.AccessToken != ""
}
