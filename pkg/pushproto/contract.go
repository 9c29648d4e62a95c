package pushproto

import "time"

// HeartbeatInterval is how often each side of a push connection sends a
// heartbeat. A peer silent for a few intervals is considered gone.
const HeartbeatInterval = 4 * time.Second

// MaxPageLimit is the largest limit the list endpoint honors; larger values are
// clamped to it.
const MaxPageLimit = 200
