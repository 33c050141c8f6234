// Package store provides persistent per-user credential storage for the
// inference gateway. Each user has at most one stored inference API token,
// created or overwritten on save and read fresh on every gateway call so a
// revoked token never lingers in a cache.
//
// The DynamoDB implementation uses a single-table design where each user's
// records share a partition key (USER#{uid}); the sort key TOKEN holds the
// credential record.
package store

import (
	"context"
	"regexp"
)

// TokenPattern is the required shape of a Replicate API token.
var TokenPattern = regexp.MustCompile(`^r8_[A-Za-z0-9_-]{30,}$`)

// ValidToken reports whether token matches the required pattern.
func ValidToken(token string) bool {
	return TokenPattern.MatchString(token)
}

// CredentialStore defines the persistence interface for per-user inference
// tokens. Each method is safe for concurrent use. GetToken returns ("", nil)
// when the user has no stored token; SaveToken performs full replacement
// (upsert semantics).
type CredentialStore interface {
	// GetToken retrieves the stored token for a user. Returns "", nil if none.
	GetToken(ctx context.Context, uid string) (string, error)

	// SaveToken creates or replaces the stored token for a user.
	SaveToken(ctx context.Context, uid, token string) error

	// HasToken reports whether the user has a stored token.
	HasToken(ctx context.Context, uid string) (bool, error)

	// DeleteToken removes the stored token for a user. Deleting a missing
	// token is not an error.
	DeleteToken(ctx context.Context, uid string) error
}

// credentialRecord is the DynamoDB attribute shape for a stored token.
// PK and SK are added by the store on write and excluded on read.
type credentialRecord struct {
	Token     string `dynamodbav:"token"`
	UpdatedAt int64  `dynamodbav:"updatedAt"`
}
