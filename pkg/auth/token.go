package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/tracker/pkg/observability"
	"github.com/platinummonkey/tracker/pkg/tracker"
)

const (
	// TokenPrefix identifies tracker tokens
	TokenPrefix = "trk_"
	// TokenLength is the total length of random bytes (32 bytes = 256 bits)
	TokenLength = 32
)

// ErrInvalidToken is returned for unknown, revoked or expired tokens
var ErrInvalidToken = errors.New("invalid or expired token")

// TokenGenerator generates and validates API tokens
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken creates a new API token
// Format: trk_<base64url(32 random bytes)>
func (tg *TokenGenerator) GenerateToken() (token string, tokenHash string, tokenPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encodedToken := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullToken := TokenPrefix + encodedToken

	return fullToken, tg.HashToken(fullToken), tg.ExtractPrefix(fullToken), nil
}

// HashToken computes the SHA256 hash of a token for lookup
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks if a token has the correct format
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) == 0 {
		return fmt.Errorf("token is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encodedPart); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}

	return nil
}

// ExtractPrefix extracts the prefix from a token for display
func (tg *TokenGenerator) ExtractPrefix(token string) string {
	if !strings.HasPrefix(token, TokenPrefix) {
		return ""
	}

	encodedPart := strings.TrimPrefix(token, TokenPrefix)
	if len(encodedPart) >= 8 {
		return TokenPrefix + encodedPart[:8]
	}

	return token
}

// TokenManager stores API tokens and resolves bearer tokens to callers.
// Successful validations are cached by token hash for a short TTL; a
// revocation on another instance takes effect once that entry expires.
type TokenManager struct {
	db        *sql.DB
	generator *TokenGenerator
	cache     *expirable.LRU[string, *AuthContext]
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewTokenManager creates a token manager. A cacheSize of zero disables caching.
func NewTokenManager(db *sql.DB, cacheSize int, cacheTTL time.Duration, metrics *observability.Metrics) *TokenManager {
	tm := &TokenManager{
		db:        db,
		generator: NewTokenGenerator(),
		metrics:   metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if cacheSize > 0 {
		tm.cache = expirable.NewLRU[string, *AuthContext](cacheSize, nil, cacheTTL)
	}
	return tm
}

// CreateToken creates and stores a new API token. The plaintext token is
// returned once and never stored.
func (tm *TokenManager) CreateToken(ctx context.Context, userID uuid.UUID, name string, scopes []Scope, expiresAt *time.Time) (*APIToken, string, error) {
	if strings.TrimSpace(name) == "" {
		return nil, "", tracker.NewValidationError("name", "token name is required")
	}
	if len(scopes) == 0 {
		scopes = []Scope{ScopeAll}
	}

	token, tokenHash, tokenPrefix, err := tm.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	apiToken := &APIToken{
		ID:          uuid.New(),
		UserID:      userID,
		TokenHash:   tokenHash,
		TokenPrefix: tokenPrefix,
		Name:        name,
		Scopes:      scopes,
		ExpiresAt:   expiresAt,
		CreatedAt:   tm.now(),
	}

	_, err = tm.db.ExecContext(ctx, `
		INSERT INTO api_tokens (id, user_id, token_hash, token_prefix, name, scopes, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, apiToken.ID, apiToken.UserID, apiToken.TokenHash, apiToken.TokenPrefix, apiToken.Name,
		JoinScopes(apiToken.Scopes), nullTime(apiToken.ExpiresAt), apiToken.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to store token: %w", err)
	}

	return apiToken, token, nil
}

// ValidateToken resolves a bearer token to its user and scopes
func (tm *TokenManager) ValidateToken(ctx context.Context, token string) (*AuthContext, error) {
	if err := tm.generator.ValidateTokenFormat(token); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	tokenHash := tm.generator.HashToken(token)
	now := tm.now()

	if tm.cache != nil {
		if authCtx, ok := tm.cache.Get(tokenHash); ok {
			if authCtx.Token.IsUsable(now) {
				tm.metrics.RecordTokenCache(true)
				return authCtx, nil
			}
			tm.cache.Remove(tokenHash)
		}
		tm.metrics.RecordTokenCache(false)
	}

	var (
		apiToken   APIToken
		user       tracker.User
		scopes     string
		expiresAt  sql.NullTime
		lastUsedAt sql.NullTime
		revokedAt  sql.NullTime
	)
	err := tm.db.QueryRowContext(ctx, `
		SELECT t.id, t.user_id, t.token_prefix, t.name, t.scopes, t.expires_at, t.last_used_at, t.created_at, t.revoked_at,
		       u.display_name, u.handle, u.created_at
		FROM api_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = $1
	`, tokenHash).Scan(
		&apiToken.ID, &apiToken.UserID, &apiToken.TokenPrefix, &apiToken.Name, &scopes,
		&expiresAt, &lastUsedAt, &apiToken.CreatedAt, &revokedAt,
		&user.DisplayName, &user.Handle, &user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	apiToken.TokenHash = tokenHash
	apiToken.Scopes = ParseScopes(scopes)
	apiToken.ExpiresAt = timePtr(expiresAt)
	apiToken.LastUsedAt = timePtr(lastUsedAt)
	apiToken.RevokedAt = timePtr(revokedAt)
	user.ID = apiToken.UserID

	if !apiToken.IsUsable(now) {
		return nil, ErrInvalidToken
	}

	if _, err := tm.db.ExecContext(ctx, `UPDATE api_tokens SET last_used_at = $1 WHERE id = $2`, now, apiToken.ID); err != nil {
		return nil, fmt.Errorf("failed to update token usage: %w", err)
	}
	apiToken.LastUsedAt = &now

	authCtx := &AuthContext{
		User:   &user,
		Token:  &apiToken,
		Scopes: apiToken.Scopes,
	}
	if tm.cache != nil {
		tm.cache.Add(tokenHash, authCtx)
	}
	return authCtx, nil
}

// RevokeToken revokes one of userID's tokens
func (tm *TokenManager) RevokeToken(ctx context.Context, tokenID, userID uuid.UUID) error {
	var tokenHash string
	err := tm.db.QueryRowContext(ctx, `
		UPDATE api_tokens SET revoked_at = $1
		WHERE id = $2 AND user_id = $3 AND revoked_at IS NULL
		RETURNING token_hash
	`, tm.now(), tokenID, userID).Scan(&tokenHash)
	if errors.Is(err, sql.ErrNoRows) {
		return tracker.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	if tm.cache != nil {
		tm.cache.Remove(tokenHash)
	}
	return nil
}

// ListUserTokens lists all tokens for a user, newest first
func (tm *TokenManager) ListUserTokens(ctx context.Context, userID uuid.UUID) ([]*APIToken, error) {
	rows, err := tm.db.QueryContext(ctx, `
		SELECT id, user_id, token_prefix, name, scopes, expires_at, last_used_at, created_at, revoked_at
		FROM api_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*APIToken
	for rows.Next() {
		var (
			t          APIToken
			scopes     string
			expiresAt  sql.NullTime
			lastUsedAt sql.NullTime
			revokedAt  sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.TokenPrefix, &t.Name, &scopes,
			&expiresAt, &lastUsedAt, &t.CreatedAt, &revokedAt); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		t.Scopes = ParseScopes(scopes)
		t.ExpiresAt = timePtr(expiresAt)
		t.LastUsedAt = timePtr(lastUsedAt)
		t.RevokedAt = timePtr(revokedAt)
		tokens = append(tokens, &t)
	}
	return tokens, rows.Err()
}

// CleanupExpiredTokens deletes tokens that expired before now
func (tm *TokenManager) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	result, err := tm.db.ExecContext(ctx,
		`DELETE FROM api_tokens WHERE expires_at IS NOT NULL AND expires_at < $1`, tm.now())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up tokens: %w", err)
	}
	return result.RowsAffected()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
