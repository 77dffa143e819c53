package models

import "time"

// ClipToken grants download access to a single clip until it expires
type ClipToken struct {
	Token     string    // The actual token string
	Clip      string    // Clip file name this token is valid for
	CreatedAt time.Time // When token was created
	ExpiresAt time.Time // When token expires
	ClientIP  string    // IP address that requested the token
}

// IsValid checks if the token is still valid at now
func (t *ClipToken) IsValid(now time.Time) bool {
	return now.Before(t.ExpiresAt)
}

// ClipLinkRequest asks for a shareable download link
type ClipLinkRequest struct {
	ExpiresIn int `json:"expiresIn"` // Seconds until expiration (default 3600)
}

// ClipLinkResponse is a download link carrying a clip token
type ClipLinkResponse struct {
	FileName  string `json:"fileName"`
	URL       string `json:"url"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
	DirectURL string `json:"directUrl,omitempty"` // Signed object store URL, GCS and S3 only
}
