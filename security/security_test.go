package security

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowUnderLimit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rl := NewRateLimiter(db, 30)
	ctx := context.Background()

	mock.ExpectIncr("ratelimit:ip:10.0.0.1").SetVal(1)
	mock.ExpectExpire("ratelimit:ip:10.0.0.1", time.Minute).SetVal(true)

	assert.True(t, rl.Allow(ctx, "ip:10.0.0.1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rl := NewRateLimiter(db, 30)
	ctx := context.Background()

	mock.ExpectIncr("ratelimit:ip:10.0.0.1").SetVal(31)

	assert.False(t, rl.Allow(ctx, "ip:10.0.0.1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_FailsOpenOnRedisError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rl := NewRateLimiter(db, 30)

	mock.ExpectIncr("ratelimit:ip:10.0.0.1").SetErr(fmt.Errorf("connection refused"))

	assert.True(t, rl.Allow(context.Background(), "ip:10.0.0.1"))
}

func TestRateLimiter_DefaultLimit(t *testing.T) {
	db, _ := redismock.NewClientMock()

	rl := NewRateLimiter(db, 0)

	assert.Equal(t, int64(30), rl.perMinute)
}

func TestHashAndCheckToken(t *testing.T) {
	hash, err := HashToken("s3cret-operator-token")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	assert.True(t, CheckToken(hash, "s3cret-operator-token"))
	assert.False(t, CheckToken(hash, "wrong-token"))
	assert.False(t, CheckToken("not-a-bcrypt-hash", "s3cret-operator-token"))
}

func TestCheckToken_DistinctHashesStillMatch(t *testing.T) {
	h1, err := HashToken("tok")
	require.NoError(t, err)
	h2, err := HashToken("tok")
	require.NoError(t, err)

	// bcrypt salts differ but both verify
	assert.NotEqual(t, h1, h2)
	assert.True(t, CheckToken(h1, "tok"))
	assert.True(t, CheckToken(h2, "tok"))
}

func TestHmac256(t *testing.T) {
	// Known vector: HMAC-SHA256("value", key "key")
	got := Hmac256([]byte("value"), []byte("key"))

	assert.Equal(t, "90fbfcf15e74a36b89dbdb2a721d9aecffdfdddc5c83e27f7592594f71932481", got)
	assert.NotEqual(t, got, Hmac256([]byte("value"), []byte("other-key")))
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"object":"whatsapp_business_account"}`)
	secret := "app-secret"
	header := "sha256=" + Hmac256(body, []byte(secret))

	assert.True(t, VerifyWebhookSignature(body, secret, header))
	assert.False(t, VerifyWebhookSignature(body, secret, "sha256=deadbeef"))
	assert.False(t, VerifyWebhookSignature(body, secret, ""))
	assert.False(t, VerifyWebhookSignature([]byte("tampered"), secret, header))
}

func TestVerifyWebhookSignature_NoSecretSkipsCheck(t *testing.T) {
	// Without a configured secret the check degrades to a no-op
	assert.True(t, VerifyWebhookSignature([]byte("anything"), "", "whatever"))
}
