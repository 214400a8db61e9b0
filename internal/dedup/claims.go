// Package dedup claims provider messages across concurrent runs so that two
// overlapping passes never post the same voicemail.
package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClaims stores one key per claimed message id with a TTL. The TTL bounds how
// long a crashed run can hold a message back.
type RedisClaims struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	owner  string
}

func NewRedisClaims(rdb *redis.Client, prefix string, ttl time.Duration, owner string) *RedisClaims {
	if prefix == "" {
		prefix = "vmrelay:claim:"
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisClaims{rdb: rdb, prefix: prefix, ttl: ttl, owner: owner}
}

// Claim reports true when this run now owns the message.
func (c *RedisClaims) Claim(ctx context.Context, messageID string) (bool, error) {
	return c.rdb.SetNX(ctx, c.prefix+messageID, c.owner, c.ttl).Result()
}

// Release drops a claim this run owns so the next pass can pick the message up.
// A claim taken over by another owner after expiry is left alone.
func (c *RedisClaims) Release(ctx context.Context, messageID string) error {
	key := c.prefix + messageID
	return releaseScript.Run(ctx, c.rdb, []string{key}, c.owner).Err()
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
