package auth

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tracker/pkg/observability"
	"github.com/platinummonkey/tracker/pkg/storage"
	"github.com/platinummonkey/tracker/pkg/tracker"
)

func TestTokenGenerator_GenerateToken(t *testing.T) {
	tg := NewTokenGenerator()

	token, tokenHash, tokenPrefix, err := tg.GenerateToken()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(token, TokenPrefix))
	assert.Len(t, tokenHash, 64)
	assert.Equal(t, tg.HashToken(token), tokenHash)
	assert.Equal(t, token[:len(TokenPrefix)+8], tokenPrefix)
	assert.NoError(t, tg.ValidateTokenFormat(token))
}

func TestTokenGenerator_GenerateToken_Uniqueness(t *testing.T) {
	tg := NewTokenGenerator()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, _, _, err := tg.GenerateToken()
		require.NoError(t, err)
		require.False(t, seen[token], "duplicate token")
		seen[token] = true
	}
}

func TestTokenGenerator_ValidateTokenFormat(t *testing.T) {
	tg := NewTokenGenerator()

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"valid token", "trk_abc123def456", false},
		{"missing prefix", "abc123def456", true},
		{"wrong prefix", "ghp_abc123def456", true},
		{"empty token part", "trk_", true},
		{"invalid base64", "trk_!!!invalid!!!", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tg.ValidateTokenFormat(tt.token)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTokenGenerator_ExtractPrefix(t *testing.T) {
	tg := NewTokenGenerator()
	assert.Equal(t, "trk_abcdefgh", tg.ExtractPrefix("trk_abcdefghijkl"))
	assert.Equal(t, "trk_abc", tg.ExtractPrefix("trk_abc"))
	assert.Equal(t, "", tg.ExtractPrefix("nope"))
}

func setupTokenDB(t *testing.T) (*sql.DB, uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	db, err := storage.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, storage.RunMigrations(ctx, db, storage.DriverSQLite, observability.NewLogger(observability.ErrorLevel, nil)))

	userID := uuid.New()
	_, err = db.ExecContext(ctx, `INSERT INTO users (id, display_name, handle, created_at) VALUES ($1, $2, $3, $4)`,
		userID, "Alice", "alice", time.Now().UTC())
	require.NoError(t, err)
	return db, userID
}

func TestTokenManager_CreateAndValidate(t *testing.T) {
	db, userID := setupTokenDB(t)
	ctx := context.Background()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	tm := NewTokenManager(db, 16, time.Minute, metrics)

	apiToken, plaintext, err := tm.CreateToken(ctx, userID, "laptop", []Scope{ScopeRead, ScopeWrite}, nil)
	require.NoError(t, err)
	assert.Equal(t, userID, apiToken.UserID)
	assert.NotContains(t, apiToken.TokenHash, plaintext)

	authCtx, err := tm.ValidateToken(ctx, plaintext)
	require.NoError(t, err)
	assert.Equal(t, userID, authCtx.UserID())
	assert.Equal(t, "alice", authCtx.User.Handle)
	assert.True(t, authCtx.HasScope(ScopeWrite))
	require.NotNil(t, authCtx.Token.LastUsedAt)

	// Second validation is served from cache
	_, err = tm.ValidateToken(ctx, plaintext)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TokenCacheHitsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TokenCacheMissesTotal))

	tokens, err := tm.ListUserTokens(ctx, userID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "laptop", tokens[0].Name)
	assert.Equal(t, []Scope{ScopeRead, ScopeWrite}, tokens[0].Scopes)
}

func TestTokenManager_DefaultScope(t *testing.T) {
	db, userID := setupTokenDB(t)
	tm := NewTokenManager(db, 0, 0, nil)

	apiToken, _, err := tm.CreateToken(context.Background(), userID, "cli", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []Scope{ScopeAll}, apiToken.Scopes)

	_, _, err = tm.CreateToken(context.Background(), userID, " ", nil, nil)
	assert.True(t, tracker.IsValidation(err))
}

func TestTokenManager_RevokeEvictsCache(t *testing.T) {
	db, userID := setupTokenDB(t)
	ctx := context.Background()
	tm := NewTokenManager(db, 16, time.Hour, nil)

	apiToken, plaintext, err := tm.CreateToken(ctx, userID, "ci", nil, nil)
	require.NoError(t, err)

	_, err = tm.ValidateToken(ctx, plaintext)
	require.NoError(t, err)

	require.NoError(t, tm.RevokeToken(ctx, apiToken.ID, userID))

	_, err = tm.ValidateToken(ctx, plaintext)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Revoking twice, or someone else's token, is not found
	assert.ErrorIs(t, tm.RevokeToken(ctx, apiToken.ID, userID), tracker.ErrNotFound)
	assert.ErrorIs(t, tm.RevokeToken(ctx, apiToken.ID, uuid.New()), tracker.ErrNotFound)
}

func TestTokenManager_ExpiredTokens(t *testing.T) {
	db, userID := setupTokenDB(t)
	ctx := context.Background()
	tm := NewTokenManager(db, 16, time.Hour, nil)

	past := time.Now().UTC().Add(-time.Hour)
	_, plaintext, err := tm.CreateToken(ctx, userID, "old", nil, &past)
	require.NoError(t, err)

	_, err = tm.ValidateToken(ctx, plaintext)
	assert.ErrorIs(t, err, ErrInvalidToken)

	removed, err := tm.CleanupExpiredTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestTokenManager_UnknownAndMalformed(t *testing.T) {
	db, _ := setupTokenDB(t)
	tm := NewTokenManager(db, 16, time.Minute, nil)

	_, err := tm.ValidateToken(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	token, _, _, err := NewTokenGenerator().GenerateToken()
	require.NoError(t, err)
	_, err = tm.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_LookupError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM api_tokens t")).
		WillReturnError(errors.New("connection reset"))

	token, _, _, err := NewTokenGenerator().GenerateToken()
	require.NoError(t, err)

	_, err = NewTokenManager(db, 0, 0, nil).ValidateToken(context.Background(), token)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidToken)
	assert.Contains(t, err.Error(), "failed to look up token")
	require.NoError(t, mock.ExpectationsWereMet())
}
