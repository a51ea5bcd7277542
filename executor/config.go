package executor

import "time"

// DefaultConfig returns the executor defaults the teacher's gqs pusher
// used as its implicit lease/expiration values, adapted to this
// module's named configuration keys.
func DefaultConfig() Config {
	return Config{
		MessageExpirationTimeout: 10 * time.Minute,
		UpdateInterval:           30 * time.Second,
		DismissTimeout:           20 * time.Second,
		RevokeTimeout:            5 * time.Second,
		InspectTimeout:           2 * time.Second,
	}
}
