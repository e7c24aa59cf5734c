package repo

import (
	"errors"
	"time"

	"sprout/internal/faults"
	"sprout/internal/models"

	"gorm.io/gorm"
)

type CredentialStore struct {
	db *gorm.DB
}

func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// Authenticate resolves a device secret. Unknown or inactive -> Unauthorized.
func (s *CredentialStore) Authenticate(secret string) (*models.ApiCredential, error) {
	if secret == "" {
		return nil, faults.New(faults.Unauthorized, "missing api key")
	}
	var c models.ApiCredential
	if err := s.db.Where("secret = ?", secret).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, faults.New(faults.Unauthorized, "unrecognized api key")
		}
		return nil, faults.Wrap(faults.Unavailable, "credential lookup failed", err)
	}
	if !c.Active {
		return nil, faults.New(faults.Unauthorized, "api key is inactive")
	}
	now := time.Now()
	// best-effort usage stamp; failure must not block the call
	_ = s.db.Model(&models.ApiCredential{}).Where("id = ?", c.ID).
		Update("last_used_at", now).Error
	return &c, nil
}

// AuthenticateDevice additionally pins the credential to deviceID.
func (s *CredentialStore) AuthenticateDevice(secret, deviceID string) (*models.ApiCredential, error) {
	c, err := s.Authenticate(secret)
	if err != nil {
		return nil, err
	}
	if c.DeviceUUID != deviceID {
		return nil, faults.New(faults.Forbidden, "api key does not match device")
	}
	return c, nil
}
