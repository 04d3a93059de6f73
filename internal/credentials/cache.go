package credentials

import (
	"time"

	"github.com/PolarWolf314/passgit/internal/utils"

	"github.com/patrickmn/go-cache"
)

const (
	passwordKey  = "remote-password"
	keySecretKey = "ssh-key-secret"

	// DefaultCacheTTL bounds how long an unlocked secret outlives the
	// operation that requested it.
	DefaultCacheTTL = 15 * time.Minute
)

// Cache holds secrets shared across operations in one process.
type Cache struct {
	c *cache.Cache
}

func NewCache(ttl time.Duration) *Cache {
	c := cache.New(ttl, 2*ttl)
	c.OnEvicted(func(_ string, v interface{}) {
		if b, ok := v.([]byte); ok {
			utils.Zero(b)
		}
	})
	return &Cache{c: c}
}

func (c *Cache) get(key string) ([]byte, bool) {
	v, ok := c.c.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b...), true
}

func (c *Cache) set(key string, value []byte) {
	c.c.Set(key, append([]byte(nil), value...), cache.DefaultExpiration)
}

// Password returns a copy of the cached remote password.
func (c *Cache) Password() ([]byte, bool) { return c.get(passwordKey) }

func (c *Cache) SetPassword(p []byte) { c.set(passwordKey, p) }

// ClearPassword drops the cached remote password.
func (c *Cache) ClearPassword() { c.c.Delete(passwordKey) }

// KeySecret returns a copy of the PIN that last unlocked the SSH key.
func (c *Cache) KeySecret() ([]byte, bool) { return c.get(keySecretKey) }

func (c *Cache) SetKeySecret(s []byte) { c.c.Set(keySecretKey, append([]byte(nil), s...), cache.DefaultExpiration) }

// ClearKeySecret forgets the unlocked key identity so the next operation
// runs the PIN challenge again.
func (c *Cache) ClearKeySecret() { c.c.Delete(keySecretKey) }

// Clear drops every cached secret.
func (c *Cache) Clear() {
	c.ClearPassword()
	c.ClearKeySecret()
}
