package idp

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// account is the provider-internal record, verifier included
type account struct {
	identity Identity
	verifier []byte
}

// InMemoryClient implements Client using in-memory storage. It is the
// development and test stand-in for a real identity provider: it owns the
// password verifier, enforces email uniqueness, and tracks revocation epochs.
// All data is lost when the process stops.
type InMemoryClient struct {
	mu              sync.RWMutex
	accounts        map[string]*account // id -> account
	accountsByEmail map[string]string   // normalized email -> id
}

// NewInMemoryClient creates a new in-memory identity provider client
func NewInMemoryClient() *InMemoryClient {
	return &InMemoryClient{
		accounts:        make(map[string]*account),
		accountsByEmail: make(map[string]string),
	}
}

// CreateAccount implements Client.CreateAccount
func (c *InMemoryClient) CreateAccount(ctx context.Context, params CreateAccountParams) (Identity, error) {
	verifier, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return Identity{}, err
	}

	email := NormalizeEmail(params.Email)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Uniqueness is decided here, under the lock. Concurrent creates for the
	// same email never both succeed.
	if _, exists := c.accountsByEmail[email]; exists {
		return Identity{}, ErrDuplicateEmail
	}

	identity := Identity{
		ID:              uuid.New().String(),
		Email:           email,
		DisplayName:     params.DisplayName,
		RevocationEpoch: 1,
	}
	c.accounts[identity.ID] = &account{identity: identity, verifier: verifier}
	c.accountsByEmail[email] = identity.ID

	return identity, nil
}

// GetAccount implements Client.GetAccount
func (c *InMemoryClient) GetAccount(ctx context.Context, id string) (Identity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	acct, ok := c.accounts[id]
	if !ok {
		return Identity{}, ErrAccountNotFound
	}
	return acct.identity, nil
}

// GetByEmail implements Client.GetByEmail
func (c *InMemoryClient) GetByEmail(ctx context.Context, email string) (Identity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.accountsByEmail[NormalizeEmail(email)]
	if !ok {
		return Identity{}, ErrAccountNotFound
	}
	return c.accounts[id].identity, nil
}

// VerifyPassword implements Client.VerifyPassword
func (c *InMemoryClient) VerifyPassword(ctx context.Context, id, password string) error {
	c.mu.RLock()
	acct, ok := c.accounts[id]
	c.mu.RUnlock()

	if !ok {
		return ErrAccountNotFound
	}
	if acct.identity.Disabled {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acct.verifier, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// UpdateAccount implements Client.UpdateAccount
func (c *InMemoryClient) UpdateAccount(ctx context.Context, id string, params UpdateAccountParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	acct, ok := c.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}

	if params.Email != nil {
		email := NormalizeEmail(*params.Email)
		if owner, exists := c.accountsByEmail[email]; exists && owner != id {
			return ErrDuplicateEmail
		}
		delete(c.accountsByEmail, acct.identity.Email)
		acct.identity.Email = email
		c.accountsByEmail[email] = id
	}
	if params.DisplayName != nil {
		acct.identity.DisplayName = *params.DisplayName
	}
	return nil
}

// UpdatePassword implements Client.UpdatePassword
func (c *InMemoryClient) UpdatePassword(ctx context.Context, id, newPassword string) error {
	verifier, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	acct, ok := c.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	acct.verifier = verifier
	return nil
}

// BumpRevocationEpoch implements Client.BumpRevocationEpoch
func (c *InMemoryClient) BumpRevocationEpoch(ctx context.Context, id string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	acct, ok := c.accounts[id]
	if !ok {
		return 0, ErrAccountNotFound
	}
	acct.identity.RevocationEpoch++
	return acct.identity.RevocationEpoch, nil
}

// DeleteAccount implements Client.DeleteAccount
func (c *InMemoryClient) DeleteAccount(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	acct, ok := c.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	delete(c.accountsByEmail, acct.identity.Email)
	delete(c.accounts, id)
	return nil
}
