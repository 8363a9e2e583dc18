package profile

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no document exists for the given key
var ErrNotFound = errors.New("profile document not found")

// Role names known to the system
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Limits on the open extra-attributes mapping. The document shape is fixed;
// forward-compatible extension goes through Profile, bounded and validated
// at the boundary.
const (
	MaxExtraAttributes  = 32
	MaxExtraValueLength = 512
)

// Document is the application-owned user record, keyed by identity id.
// PasswordHash is a local verifier copy kept for schema and audit parity;
// authentication itself is always delegated to the identity provider.
type Document struct {
	ID           string            `json:"id"`
	Email        string            `json:"email"`
	PasswordHash string            `json:"password_hash,omitempty"`
	DisplayName  string            `json:"display_name"`
	Role         string            `json:"role"`
	IsActive     bool              `json:"is_active"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	LastLogin    *time.Time        `json:"last_login,omitempty"`
	Profile      map[string]string `json:"profile,omitempty"`
}

// Patch names the fields of a partial update. Nil fields are left unchanged;
// Profile entries are merged into the existing mapping.
type Patch struct {
	Email        *string
	PasswordHash *string
	DisplayName  *string
	Role         *string
	IsActive     *bool
	LastLogin    *time.Time
	Profile      map[string]string
}

// Store defines the interface for profile document storage.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get retrieves a document by identity id
	Get(ctx context.Context, id string) (Document, error)

	// Put stores a document under the given id, replacing any existing one
	Put(ctx context.Context, id string, doc Document) error

	// Patch applies a partial update and returns the updated document
	Patch(ctx context.Context, id string, patch Patch) (Document, error)

	// Delete removes a document
	Delete(ctx context.Context, id string) error

	// FindByEmail retrieves a document by its denormalized email copy
	FindByEmail(ctx context.Context, email string) (Document, error)

	// List returns all documents
	List(ctx context.Context) ([]Document, error)
}

// ValidRole reports whether the given role name is known
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAdmin:
		return true
	}
	return false
}

// ValidateExtra checks the open attributes mapping against the configured
// bounds before it is accepted into a document.
func ValidateExtra(attrs map[string]string) error {
	if len(attrs) > MaxExtraAttributes {
		return fmt.Errorf("too many profile attributes: %d (max %d)", len(attrs), MaxExtraAttributes)
	}
	for key, value := range attrs {
		if key == "" {
			return fmt.Errorf("profile attribute key cannot be empty")
		}
		if len(value) > MaxExtraValueLength {
			return fmt.Errorf("profile attribute %q too long: %d (max %d)", key, len(value), MaxExtraValueLength)
		}
	}
	return nil
}

// apply merges a patch into a document, stamping UpdatedAt
func (p Patch) apply(doc Document, now time.Time) Document {
	if p.Email != nil {
		doc.Email = *p.Email
	}
	if p.PasswordHash != nil {
		doc.PasswordHash = *p.PasswordHash
	}
	if p.DisplayName != nil {
		doc.DisplayName = *p.DisplayName
	}
	if p.Role != nil {
		doc.Role = *p.Role
	}
	if p.IsActive != nil {
		doc.IsActive = *p.IsActive
	}
	if p.LastLogin != nil {
		doc.LastLogin = p.LastLogin
	}
	if len(p.Profile) > 0 {
		if doc.Profile == nil {
			doc.Profile = make(map[string]string, len(p.Profile))
		}
		for k, v := range p.Profile {
			doc.Profile[k] = v
		}
	}
	doc.UpdatedAt = now
	return doc
}
