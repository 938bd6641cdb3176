// Package mfa implements TOTP second-factor enrollment and verification.
package mfa

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
	"gorm.io/gorm"

	"github.com/argushq/argus/internal/models"
	"github.com/argushq/argus/pkg/crypto"
)

var (
	// ErrNotEnrolled is returned when the user has no TOTP secret on file.
	ErrNotEnrolled = errors.New("mfa: not enrolled")
	// ErrInvalidCode covers codes that fail TOTP verification.
	ErrInvalidCode = errors.New("mfa: invalid code")
	// ErrAlreadyActivated is returned on a second activation attempt.
	ErrAlreadyActivated = errors.New("mfa: already activated")
)

// Enrollment carries the provisioning material returned to the client once,
// at enroll time.
type Enrollment struct {
	Secret string
	URL    string
	QRPNG  []byte
}

// TOTPConfig describes the issuer shown in authenticator apps and the
// encryption key for secrets at rest.
type TOTPConfig struct {
	Issuer        string
	EncryptionKey string
	Clock         func() time.Time
}

// TOTPService manages TOTP enrollment, activation, and verification. Seeds
// are stored AES-GCM encrypted; an enrollment is unusable until activated
// with a first valid code.
type TOTPService struct {
	db     *gorm.DB
	issuer string
	key    []byte
	now    func() time.Time
}

// NewTOTPService constructs a TOTP manager. The encryption key is stretched
// to 32 bytes via SHA-256 so any configured passphrase works.
func NewTOTPService(db *gorm.DB, cfg TOTPConfig) (*TOTPService, error) {
	if db == nil {
		return nil, errors.New("mfa: db is required")
	}
	if cfg.EncryptionKey == "" {
		return nil, errors.New("mfa: encryption key is required")
	}

	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "Argus"
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	derived := sha256.Sum256([]byte(cfg.EncryptionKey))

	return &TOTPService{
		db:     db,
		issuer: issuer,
		key:    derived[:],
		now:    clock,
	}, nil
}

// Enroll generates a fresh seed for the user and returns the provisioning
// URL and QR code. Re-enrolling before activation replaces the pending seed;
// an activated enrollment must be disabled first.
func (s *TOTPService) Enroll(ctx context.Context, userID, accountName string) (*Enrollment, error) {
	var existing models.MFASecret
	err := s.db.WithContext(ctx).Take(&existing, "user_id = ?", userID).Error
	if err == nil && existing.Activated {
		return nil, ErrAlreadyActivated
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("mfa: lookup secret: %w", err)
	}

	generated, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: accountName,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("mfa: generate seed: %w", err)
	}

	encrypted, err := crypto.Encrypt([]byte(generated.Secret()), s.key)
	if err != nil {
		return nil, fmt.Errorf("mfa: encrypt seed: %w", err)
	}

	record := &models.MFASecret{
		UserID: userID,
		Secret: encrypted,
	}
	if existing.ID != "" {
		record.ID = existing.ID
		err = s.db.WithContext(ctx).Model(&existing).
			Updates(map[string]any{"secret": encrypted, "activated": false}).Error
	} else {
		err = s.db.WithContext(ctx).Create(record).Error
	}
	if err != nil {
		return nil, fmt.Errorf("mfa: store seed: %w", err)
	}

	png, err := qrcode.Encode(generated.URL(), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("mfa: render qr: %w", err)
	}

	return &Enrollment{
		Secret: generated.Secret(),
		URL:    generated.URL(),
		QRPNG:  png,
	}, nil
}

// Activate confirms an enrollment with its first valid code and flips the
// user's MFA flag.
func (s *TOTPService) Activate(ctx context.Context, userID, code string) error {
	record, seed, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if record.Activated {
		return ErrAlreadyActivated
	}

	if !totp.Validate(code, seed) {
		return ErrInvalidCode
	}

	now := s.now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(record).
			Updates(map[string]any{"activated": true, "last_used_at": now}).Error
		if err != nil {
			return err
		}
		return tx.Model(&models.User{}).
			Where("id = ?", userID).
			Update("mfa_enabled", true).Error
	})
}

// Verify checks a login code against the user's activated enrollment.
func (s *TOTPService) Verify(ctx context.Context, userID, code string) error {
	record, seed, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if !record.Activated {
		return ErrNotEnrolled
	}

	if !totp.Validate(code, seed) {
		return ErrInvalidCode
	}

	err = s.db.WithContext(ctx).Model(record).
		Update("last_used_at", s.now()).Error
	if err != nil {
		return fmt.Errorf("mfa: record use: %w", err)
	}
	return nil
}

// Disable removes the user's enrollment and clears the MFA flag.
func (s *TOTPService) Disable(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.MFASecret{}, "user_id = ?", userID).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).
			Where("id = ?", userID).
			Update("mfa_enabled", false).Error
	})
}

func (s *TOTPService) load(ctx context.Context, userID string) (*models.MFASecret, string, error) {
	var record models.MFASecret
	err := s.db.WithContext(ctx).Take(&record, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", ErrNotEnrolled
	}
	if err != nil {
		return nil, "", fmt.Errorf("mfa: lookup secret: %w", err)
	}

	seed, err := crypto.Decrypt(record.Secret, s.key)
	if err != nil {
		return nil, "", fmt.Errorf("mfa: decrypt seed: %w", err)
	}

	return &record, string(seed), nil
}
