package controller

import (
	"log/slog"

	"github.com/MrEthical07/adminAuth/clientstore"
)

// persist writes the signed {user, isAuthenticated} projection. Failures
// are logged; the in-memory state stays authoritative.
func (c *Controller) persist(s State) {
	if c.signer == nil {
		return
	}
	tok, err := c.signer.Sign(s.User, s.IsAuthenticated)
	if err != nil {
		c.logger.Warn("sign auth projection", slog.Any("error", err))
		return
	}
	if err := c.storage.Set(clientstore.KeyAuthStorage, tok); err != nil {
		c.logger.Warn("persist auth projection", slog.Any("error", err))
	}
}

// Restore loads the persisted projection so a signed-in user is shown
// before CheckAuth confirms the session. A missing, expired or tampered
// projection is deleted and leaves the state unchanged. It reports whether
// a projection was applied.
func (c *Controller) Restore() bool {
	if c.signer == nil {
		return false
	}
	raw, ok, err := c.storage.Get(clientstore.KeyAuthStorage)
	if err != nil {
		c.logger.Warn("read auth projection", slog.Any("error", err))
		return false
	}
	if !ok {
		return false
	}

	claims, err := c.signer.Parse(raw)
	if err != nil {
		c.logger.Warn("discarding auth projection", slog.Any("error", err))
		if err := c.storage.Delete(clientstore.KeyAuthStorage); err != nil {
			c.logger.Warn("delete auth projection", slog.Any("error", err))
		}
		return false
	}

	c.mu.Lock()
	c.state.User = claims.User
	c.state.IsAuthenticated = claims.Authenticated
	c.publishLocked()
	c.mu.Unlock()
	return true
}
