package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	ClientRoleCampaignEditor = "campaign_editor"
	ClientRolePaymentRail    = "payment_rail"
	ClientRoleReviewer       = "reviewer"
	ClientRoleSettlement     = "settlement"
)

// ApiClient is one external collaborator allowed to call the protected API
// surface: the campaign editor pushing definitions, the payment rail querying
// prices, the review workflow pulling items. Keys are stored as SHA-256
// lookup hashes; the raw secret is only returned once at issue time.
type ApiClient struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Name             string     `gorm:"type:varchar(150);not null" json:"name"`
	Role             string     `gorm:"type:varchar(32);not null;index" json:"role"`
	APIKeyHash       string     `gorm:"type:char(64);uniqueIndex;not null" json:"-"`
	APIKeyPrefix     string     `gorm:"type:varchar(20);not null" json:"api_key_prefix"`
	APIKeyLastUsedAt *time.Time `gorm:"type:timestamp;default:null" json:"api_key_last_used_at,omitempty"`
	RevokedAt        *time.Time `gorm:"type:timestamp;default:null" json:"revoked_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

var clientKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

const clientKeyPrefix = "qp_"

// IsValidClientRole reports whether the given role is one of the known
// client roles.
func IsValidClientRole(role string) bool {
	switch role {
	case ClientRoleCampaignEditor, ClientRolePaymentRail, ClientRoleReviewer, ClientRoleSettlement:
		return true
	default:
		return false
	}
}

// IsActive reports whether the client may authenticate.
func (c *ApiClient) IsActive() bool {
	return c != nil && c.APIKeyHash != "" && c.RevokedAt == nil
}

// HasRole reports whether the client is allowed to act in the given role.
func (c *ApiClient) HasRole(role string) bool {
	return c != nil && c.Role == role
}

// IssueClientKey fills in fresh key material and returns the raw secret.
// Callers must persist the struct after invoking this method.
func (c *ApiClient) IssueClientKey() (string, error) {
	rawKey, prefix, hash, err := generateClientKeyMaterial()
	if err != nil {
		return "", err
	}
	c.APIKeyHash = hash
	c.APIKeyPrefix = prefix
	c.RevokedAt = nil
	c.APIKeyLastUsedAt = nil
	return rawKey, nil
}

// Revoke clears the key without deleting the record.
func (c *ApiClient) Revoke() {
	now := time.Now()
	c.RevokedAt = &now
}

// HashClientKey returns the SHA-256 hash for the provided API key.
func HashClientKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

func generateClientKeyMaterial() (string, string, string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", err
	}
	encoded := strings.ToLower(clientKeyEncoding.EncodeToString(b))
	rawKey := clientKeyPrefix + encoded
	if len(rawKey) < 12 {
		return "", "", "", fmt.Errorf("api key generation failed: key too short")
	}
	prefix := rawKey[:min(len(rawKey), 16)]
	return rawKey, prefix, HashClientKey(rawKey), nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
