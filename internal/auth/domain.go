package auth

import "time"

// TokenPrefix starts every API token.
const TokenPrefix = "lgx"

// Token is an API credential. Only the bcrypt hash of the secret is stored.
type Token struct {
	ID          int64
	Name        string
	Prefix      string
	SecretHash  string
	Permissions []string
	Revoked     bool
	ExpiresAt   *time.Time
	CreatedAt   time.Time
	LastUsedAt  *time.Time
}

// Active reports whether the token may authenticate at the given time.
func (t Token) Active(now time.Time) bool {
	if t.Revoked {
		return false
	}
	return t.ExpiresAt == nil || now.Before(*t.ExpiresAt)
}

// Principal is the authenticated caller.
type Principal struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}
