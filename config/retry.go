package config

import "time"

const maxRetryDelay = 30 * time.Second

// retryDelay is the wait before the next connection attempt: 2s doubling
// per attempt, capped at 30s.
func retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return min(time.Second<<min(attempt, 5), maxRetryDelay)
}
