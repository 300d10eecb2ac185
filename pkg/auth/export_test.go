package auth

import "testing"

// NewFakeProvider exposes the fake hosted provider to the auth_test package.
func NewFakeProvider(t *testing.T) *GoTrueClient {
	_, client := newFakeGoTrue(t)
	return client
}
