package cache

import (
	"time"

	"github.com/bwmarrin/snowflake"

	creditsdomain "github.com/genpire/genpire/internal/credits/domain"
)

const balanceCacheTTL = 30 * time.Second

// BalanceCache keeps recently read credit balances to absorb dashboard reads.
// Writers invalidate on every balance mutation, so a stale read lives at most
// one TTL and never affects reservation admission.
type BalanceCache struct {
	inner Cache[snowflake.ID, creditsdomain.CreditBalance]
	ttl   time.Duration
}

func NewBalanceCache() *BalanceCache {
	return &BalanceCache{
		inner: NewTTLCache[snowflake.ID, creditsdomain.CreditBalance](),
		ttl:   balanceCacheTTL,
	}
}

func (c *BalanceCache) Get(userID snowflake.ID) (*creditsdomain.CreditBalance, bool) {
	if c == nil {
		return nil, false
	}
	balance, ok := c.inner.Get(userID)
	if !ok {
		return nil, false
	}
	return &balance, true
}

func (c *BalanceCache) Put(balance creditsdomain.CreditBalance) {
	if c == nil {
		return
	}
	c.inner.Set(balance.UserID, balance, c.ttl)
}

func (c *BalanceCache) Invalidate(userID snowflake.ID) {
	if c == nil {
		return
	}
	c.inner.Delete(userID)
}
