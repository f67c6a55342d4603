package utils

import "time"

// BroadcastDebounce coalesces bursts of store changes into one websocket push
const BroadcastDebounce = 50 * time.Millisecond

// DefaultMaxThoughts is how many reasoning traces the reasoning log keeps
const DefaultMaxThoughts = 20
