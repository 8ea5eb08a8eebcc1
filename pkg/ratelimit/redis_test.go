package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWindowResult(t *testing.T) {
	tests := []struct {
		name           string
		raw            interface{}
		wantCount      int
		wantRetryAfter int
		wantErr        bool
	}{
		{name: "count and ttl", raw: []interface{}{int64(3), int64(42500)}, wantCount: 3, wantRetryAfter: 43},
		{name: "sub-second ttl rounds up to one", raw: []interface{}{int64(31), int64(10)}, wantCount: 31, wantRetryAfter: 1},
		{name: "missing ttl uses the window", raw: []interface{}{int64(1), int64(-1)}, wantCount: 1, wantRetryAfter: 60},
		{name: "not a list", raw: "OK", wantErr: true},
		{name: "wrong arity", raw: []interface{}{int64(1)}, wantErr: true},
		{name: "non-integer count", raw: []interface{}{"1", int64(1000)}, wantErr: true},
		{name: "non-integer ttl keeps count", raw: []interface{}{int64(7), "1000"}, wantCount: 7, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, retryAfter, err := parseWindowResult(tt.raw, time.Minute.Milliseconds())
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, tt.wantCount, count)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, count)
			assert.Equal(t, tt.wantRetryAfter, retryAfter)
		})
	}
}

func TestRedisLimiterSurfacesClientErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	l := NewRedisLimiter(client, "")
	assert.Equal(t, "referral:rate_limit:login:1.2.3.4", l.key("login", "1.2.3.4"))

	_, _, err := l.ConsumeRateLimit(context.Background(), "login", "1.2.3.4", 5, time.Minute)
	assert.Error(t, err)
}

func TestRedisLimiterSkipsBlankScopeOrSubject(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()
	l := NewRedisLimiter(client, "test")

	for _, pair := range [][2]string{{"", "1.2.3.4"}, {"login", "  "}} {
		count, retryAfter, err := l.ConsumeRateLimit(context.Background(), pair[0], pair[1], 5, time.Minute)
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.Zero(t, retryAfter)
	}
}
