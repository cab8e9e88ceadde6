package security

import (
	"strings"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"golang.org/x/crypto/bcrypt"
)

// HashToken returns the bcrypt hash of an operator token. The hash goes into
// OPERATOR_TOKEN_HASH, the plain token is handed to the operator.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckToken(hash, token string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}

// RequireOperator admits PocketBase superusers and requests whose bearer token
// matches the configured bcrypt hash.
func RequireOperator(tokenHash string) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if e.Auth != nil && e.Auth.IsSuperuser() {
			return e.Next()
		}

		token := strings.TrimPrefix(e.Request.Header.Get("Authorization"), "Bearer ")
		if tokenHash != "" && token != "" && CheckToken(tokenHash, token) {
			return e.Next()
		}

		return apis.NewUnauthorizedError("Operator access required", nil)
	}
}
