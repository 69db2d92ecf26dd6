package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/argus-sec/argus/internal/models"
)

const operatorTokenKey = "security.operator_token_hash"

var ErrOperatorTokenInvalid = errors.New("operator token invalid")

// TokenService manages the operator token that gates manual block/unblock and
// reset actions. Only a bcrypt hash is stored; the plaintext is shown once at
// generation time.
type TokenService struct {
	db *gorm.DB
}

// NewTokenService returns a TokenService using the provided DB.
func NewTokenService(db *gorm.DB) *TokenService {
	return &TokenService{db: db}
}

// Generate creates a fresh token, stores its hash, and returns the plaintext.
// Any previously issued token stops working.
func (s *TokenService) Generate() (string, error) {
	tokenBytes := make([]byte, 24)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	var setting models.Setting
	err = s.db.Where("key = ?", operatorTokenKey).First(&setting).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", err
		}
		setting = models.Setting{Key: operatorTokenKey, Value: string(hash), UpdatedAt: time.Now()}
		if err := s.db.Create(&setting).Error; err != nil {
			return "", err
		}
		return token, nil
	}

	setting.Value = string(hash)
	setting.UpdatedAt = time.Now()
	if err := s.db.Save(&setting).Error; err != nil {
		return "", err
	}
	return token, nil
}

// Verify validates a presented token against the stored hash.
func (s *TokenService) Verify(token string) (bool, error) {
	var setting models.Setting
	if err := s.db.Where("key = ?", operatorTokenKey).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrOperatorTokenInvalid
		}
		return false, err
	}
	if setting.Value == "" {
		return false, ErrOperatorTokenInvalid
	}
	if err := bcrypt.CompareHashAndPassword([]byte(setting.Value), []byte(token)); err != nil {
		return false, ErrOperatorTokenInvalid
	}
	return true, nil
}

// Configured reports whether an operator token has been generated.
func (s *TokenService) Configured() bool {
	var setting models.Setting
	err := s.db.Where("key = ?", operatorTokenKey).First(&setting).Error
	return err == nil && setting.Value != ""
}
