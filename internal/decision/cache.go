package decision

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/arcrelay/gateway/pkg/gateway"
)

// DefaultDecisionTTL is how long a cached RoutingDecision stays valid.
const DefaultDecisionTTL = 5 * time.Minute

// Cache stores RoutingDecisions keyed by a request hash, so identical
// requests from different users share a decision within the TTL — the
// key never includes message content or client credentials, only the
// shape that affects scoring.
type Cache struct {
	store *gocache.Cache
}

// NewCache creates a decision cache with the given TTL and a cleanup
// sweep at twice that interval, matching go-cache's standard idiom.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultDecisionTTL
	}
	return &Cache{store: gocache.New(ttl, ttl*2)}
}

// Get returns a cached decision for hash, if present and unexpired.
func (c *Cache) Get(hash string) (gateway.RoutingDecision, bool) {
	v, ok := c.store.Get(hash)
	if !ok {
		return gateway.RoutingDecision{}, false
	}
	return v.(gateway.RoutingDecision), true
}

// Set stores a decision under hash using the cache's default TTL.
func (c *Cache) Set(hash string, decision gateway.RoutingDecision) {
	c.store.SetDefault(hash, decision)
}

// HashRequest derives the cache key from fields that affect scoring —
// model family, model, max tokens, temperature, message COUNT (never
// content or credentials), and the policy name — so the same cache
// entry serves every caller asking an equivalent question.
func HashRequest(req *gateway.InferenceRequest, policyName string) string {
	raw := fmt.Sprintf("%s|%s|%d|%.4f|%d|%s",
		req.ModelFamily, req.Model, req.MaxTokens, req.Temperature, len(req.Messages), policyName)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
