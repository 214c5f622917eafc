package relay

import "time"

// allow charges the publish against the author's current minute window. The
// check-and-increment is one atomic store operation, so two concurrent
// publishes at the window boundary cannot both slip under the ceiling.
func (r *Relay) allow(pubkey string) bool {
	minute := time.Now().Unix() / 60
	allowed, err := r.store.IncrementRate(pubkey, minute, r.conf.RateLimitPerMinute)
	if err != nil {
		r.logger.WithError(err).Error("Rate limiter store failure")
		return false
	}
	return allowed
}
