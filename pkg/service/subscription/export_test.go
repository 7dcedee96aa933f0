package subscription

import "time"

func RenewalDelay(now, expiry time.Time, lead, floor time.Duration) time.Duration {
	return renewalDelay(now, expiry, lead, floor)
}
