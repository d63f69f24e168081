// Package credentials generates the per-tenant secret material handed to the
// application stack at install time.
package credentials

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// secretBytes is the raw entropy per generated secret. 16 bytes gives the
// 128 bits the provisioning contract requires.
const secretBytes = 16

// AdminUser is the fixed administrator account name provisioned into every
// tenant's application stack.
const AdminUser = "admin"

// Set holds the generated secrets for one tenant. Values are generated once
// at provisioning time and never regenerated.
type Set struct {
	AdminUser     string `json:"adminUser"`
	AdminPassword string `json:"adminPassword"`
	DBPassword    string `json:"dbPassword"`
}

// Generate produces a fresh credential set with independent random secrets.
// A failure of the entropy source is returned as-is; callers treat it as
// fatal for the operation rather than retrying.
func Generate() (Set, error) {
	adminPassword, err := token()
	if err != nil {
		return Set{}, fmt.Errorf("failed to generate admin password: %w", err)
	}
	dbPassword, err := token()
	if err != nil {
		return Set{}, fmt.Errorf("failed to generate database password: %w", err)
	}
	return Set{
		AdminUser:     AdminUser,
		AdminPassword: adminPassword,
		DBPassword:    dbPassword,
	}, nil
}

// token returns a URL-safe random string suitable for passing through
// deployer value flags and environment variables without escaping.
func token() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
