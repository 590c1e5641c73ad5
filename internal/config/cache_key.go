package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// TestContentKey returns the cache key for a test's full content (expected answers included).
func (r *CacheKeyStruct) TestContentKey(testID string) string {
	return fmt.Sprintf("test:%s:content", testID)
}

// PendingReviewKey returns the set holding submissions awaiting manual writing/speaking review.
func (r *CacheKeyStruct) PendingReviewKey() string {
	return "review:pending"
}

// RevokedTokenKey marks a JWT id as revoked until its natural expiry.
func (r *CacheKeyStruct) RevokedTokenKey(jti string) string {
	return fmt.Sprintf("auth:revoked:%s", jti)
}

var CacheKey = NewCacheKeyStruct()
