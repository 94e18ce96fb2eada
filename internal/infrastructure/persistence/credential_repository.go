package persistence

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/nacl/secretbox"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/invsync/backend/internal/domain/shared"
	syncdomain "github.com/invsync/backend/internal/domain/sync"
)

const (
	credentialRowID = 1
	nonceSize       = 24
)

// credentialModel is the single-row credential table. The API secret
// is sealed with NaCl secretbox before it touches the database; the
// 24-byte nonce is prepended to the ciphertext.
type credentialModel struct {
	ID               int    `gorm:"primaryKey"`
	APIKey           string `gorm:"type:varchar(200);not null"`
	SecretCiphertext []byte `gorm:"type:bytea;not null"`
	AccountPath      string `gorm:"type:varchar(200);not null"`
	BaseURL          string `gorm:"type:varchar(500);not null"`
	UpdatedAt        time.Time
}

func (credentialModel) TableName() string {
	return "sync_credentials"
}

// GormCredentialRepository implements CredentialRepository with the
// secret encrypted at rest.
type GormCredentialRepository struct {
	db  *gorm.DB
	key *[32]byte
}

// NewGormCredentialRepository creates a credential repository sealing
// secrets with the given 32-byte key.
func NewGormCredentialRepository(db *gorm.DB, key *[32]byte) (*GormCredentialRepository, error) {
	if key == nil {
		return nil, errors.New("credential encryption key is required")
	}
	return &GormCredentialRepository{db: db, key: key}, nil
}

// Get returns the stored credential set with the secret decrypted.
func (r *GormCredentialRepository) Get(ctx context.Context) (syncdomain.Credentials, error) {
	var model credentialModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", credentialRowID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return syncdomain.Credentials{}, shared.ErrNotFound
		}
		return syncdomain.Credentials{}, err
	}

	secret, err := r.open(model.SecretCiphertext)
	if err != nil {
		return syncdomain.Credentials{}, err
	}
	return syncdomain.Credentials{
		APIKey:      model.APIKey,
		APISecret:   secret,
		AccountPath: model.AccountPath,
		BaseURL:     model.BaseURL,
	}, nil
}

// Set stores the credential set, replacing any previous one.
func (r *GormCredentialRepository) Set(ctx context.Context, creds syncdomain.Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}

	sealed, err := r.seal(creds.APISecret)
	if err != nil {
		return err
	}

	model := &credentialModel{
		ID:               credentialRowID,
		APIKey:           creds.APIKey,
		SecretCiphertext: sealed,
		AccountPath:      creds.AccountPath,
		BaseURL:          creds.BaseURL,
		UpdatedAt:        time.Now(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(model).Error
}

// Clear removes the stored credential set.
func (r *GormCredentialRepository) Clear(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Delete(&credentialModel{}, "id = ?", credentialRowID).Error
}

func (r *GormCredentialRepository) seal(secret string) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], []byte(secret), &nonce, r.key), nil
}

func (r *GormCredentialRepository) open(sealed []byte) (string, error) {
	if len(sealed) < nonceSize {
		return "", errors.New("stored secret is corrupt")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, r.key)
	if !ok {
		return "", errors.New("stored secret cannot be decrypted with the configured key")
	}
	return string(plain), nil
}

var _ syncdomain.CredentialRepository = (*GormCredentialRepository)(nil)
