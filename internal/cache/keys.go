package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s:status", jobID)
}

func JobNameKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s:name", jobID)
}

// ResultKey stages a result document delivered out-of-band by an automation
// until the dispatcher's polling loop picks it up.
func ResultKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s:result", jobID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
