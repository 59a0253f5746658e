package auth

import (
	"context"
	"errors"
	"fmt"

	"rentalintake/database"
	"rentalintake/models"

	"golang.org/x/crypto/bcrypt"
)

// CredentialStore verifies and rotates the admin password. Only bcrypt hashes
// are ever stored.
type CredentialStore struct {
	admins *database.AdminStore
	cost   int
}

func NewCredentialStore(admins *database.AdminStore, cost int) *CredentialStore {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &CredentialStore{admins: admins, cost: cost}
}

func (c *CredentialStore) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), c.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Verify reports whether password matches the stored hash for username.
// An unknown username yields a not-found error so callers can tell it apart
// from a wrong password.
func (c *CredentialStore) Verify(ctx context.Context, username, password string) (bool, error) {
	admin, err := c.admins.Get(ctx, username)
	if err != nil {
		return false, err
	}
	err = bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("compare password: %w", err)
	}
	return true, nil
}

// ChangePassword replaces the password of username after checking oldPassword.
// The stored hash is left untouched on any failure.
func (c *CredentialStore) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	if newPassword == "" {
		return models.Validation("new password is required")
	}

	admin, err := c.admins.Get(ctx, username)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(oldPassword)); err != nil {
		return models.ErrInvalidCredentials
	}

	newHash, err := c.hash(newPassword)
	if err != nil {
		return err
	}
	return c.admins.UpdateHash(ctx, username, admin.PasswordHash, newHash)
}

// SeedDefaultAdmin creates the bootstrap admin when no admin exists yet.
// It is safe to call on every start and reports whether a row was created.
func (c *CredentialStore) SeedDefaultAdmin(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, models.Validation("default admin username and password are required")
	}

	n, err := c.admins.Count(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	h, err := c.hash(password)
	if err != nil {
		return false, err
	}
	return c.admins.InsertIfEmpty(ctx, models.Admin{Username: username, PasswordHash: h})
}
