// Package auth guards the control API: a static API token for operators and
// short lived per-clip tokens for download links.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"camclip/pkg/models"
)

var (
	// ErrUnauthorized is returned when a request carries no valid credentials
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidToken is returned for unknown, expired or mismatched clip tokens
	ErrInvalidToken = errors.New("invalid token")
)

// Manager handles authentication and authorization
type Manager struct {
	apiToken string

	tokens map[string]*models.ClipToken // token -> ClipToken
	mu     sync.RWMutex
	now    func() time.Time

	// Config
	defaultExpiration time.Duration
	maxExpiration     time.Duration
}

// New creates a new auth manager. An empty apiToken disables API token
// checks; clip tokens work either way.
func New(apiToken string) *Manager {
	return &Manager{
		apiToken:          apiToken,
		tokens:            make(map[string]*models.ClipToken),
		now:               time.Now,
		defaultExpiration: 1 * time.Hour,
		maxExpiration:     24 * time.Hour,
	}
}

// Enabled reports whether API requests must present a token
func (m *Manager) Enabled() bool {
	return m.apiToken != ""
}

// CheckAPIToken validates a presented API token
func (m *Manager) CheckAPIToken(token string) error {
	if !m.Enabled() {
		return nil
	}
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(m.apiToken)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// GenerateClipToken creates a download token for a clip
func (m *Manager) GenerateClipToken(clip string, expiresIn int, clientIP string) (*models.ClipToken, error) {
	// Generate secure random token
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	tokenString := hex.EncodeToString(tokenBytes)

	// Calculate expiration
	var expiration time.Duration
	if expiresIn > 0 {
		expiration = time.Duration(expiresIn) * time.Second
	} else {
		expiration = m.defaultExpiration
	}

	// Cap at max expiration
	if expiration > m.maxExpiration {
		expiration = m.maxExpiration
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.cleanupLocked(now)

	token := &models.ClipToken{
		Token:     tokenString,
		Clip:      clip,
		CreatedAt: now,
		ExpiresAt: now.Add(expiration),
		ClientIP:  clientIP,
	}
	m.tokens[tokenString] = token

	return token, nil
}

// ValidateClipToken checks if a token is valid for downloading clip
func (m *Manager) ValidateClipToken(tokenString string, clip string) error {
	m.mu.RLock()
	token, exists := m.tokens[tokenString]
	m.mu.RUnlock()

	if !exists {
		return ErrInvalidToken
	}

	if !token.IsValid(m.now()) {
		return fmt.Errorf("%w: expired", ErrInvalidToken)
	}

	if token.Clip != clip {
		return fmt.Errorf("%w: not valid for this clip", ErrInvalidToken)
	}

	return nil
}

// RevokeToken revokes a token
func (m *Manager) RevokeToken(tokenString string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.tokens, tokenString)
}

// CleanupExpiredTokens removes all expired tokens
func (m *Manager) CleanupExpiredTokens() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupLocked(m.now())
}

func (m *Manager) cleanupLocked(now time.Time) {
	for tokenString, token := range m.tokens {
		if !token.IsValid(now) {
			delete(m.tokens, tokenString)
		}
	}
}

// GetTokenCount returns the number of active tokens
func (m *Manager) GetTokenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tokens)
}
