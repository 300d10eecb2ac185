package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supabase-community/gotrue-go/types"
)

func TestFromLibrary(t *testing.T) {
	err := fromLibrary(errors.New(`response status code 422: {"code":422,"error_code":"user_already_exists","msg":"User already registered"}`))
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, http.StatusUnprocessableEntity, providerErr.Status)
	assert.Equal(t, "user_already_exists", providerErr.Code)
	assert.Equal(t, "User already registered", providerErr.Message)

	// bodies that can't be read still carry the status
	err = fromLibrary(errors.New("response status code 503"))
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, http.StatusServiceUnavailable, providerErr.Status)
	assert.Equal(t, http.StatusText(http.StatusServiceUnavailable), providerErr.Message)

	var transport = errors.New("dial tcp: connection refused")
	assert.Equal(t, transport, fromLibrary(transport))
	assert.NoError(t, fromLibrary(nil))
}

func TestUserFrom(t *testing.T) {
	var id = uuid.New()
	user := userFrom(types.User{
		ID:           id,
		Email:        "ruth@example.com",
		UserMetadata: map[string]interface{}{"full_name": "Ruth of Moab"},
		Identities:   []types.Identity{{Provider: "google"}},
	})
	assert.Equal(t, id.String(), user.ID)
	assert.Equal(t, "Ruth of Moab", displayName(user))
	assert.Len(t, user.Identities, 1)

	assert.Empty(t, userFrom(types.User{}).ID)
}

func TestGoTrueClient_TokenErrors(t *testing.T) {
	fake, client := newFakeGoTrue(t)
	user := fake.register("ruth@example.com", "naomi!")
	ctx := context.Background()

	_, err := client.SignInWithPassword(ctx, "ruth@example.com", "wrong!")
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, "invalid_grant", providerErr.Code)

	tokens, err := client.SignInWithPassword(ctx, "ruth@example.com", "naomi!")
	require.NoError(t, err)
	assert.Equal(t, user.ID, tokens.User.ID)

	_, err = client.GetUser(ctx, "access-expired")
	assert.ErrorIs(t, err, ErrInvalidToken)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = client.GetUser(cancelled, tokens.AccessToken)
	assert.ErrorIs(t, err, context.Canceled)
}
