package rediskey

import (
	"fmt"
	"time"
)

const (
	ThrottlePrefix = "throttle"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildThrottleKey returns "throttle:{subject}:{windowStart}" for a fixed window.
func BuildThrottleKey(subject string, at time.Time, window time.Duration) string {
	start := at.Truncate(window).Unix()
	return NamespaceKey(ThrottlePrefix, fmt.Sprintf("%s:%d", subject, start))
}
