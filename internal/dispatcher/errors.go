package dispatcher

import "github.com/Laisky/errors/v2"

// ErrNoChannels and ErrAllChannelsFailed are the two dispatcher-level
// failure modes named in §4.10 step 2/5, mapped to 503 by the router layer.
var (
	ErrNoChannels        = errors.New("no_channels")
	ErrAllChannelsFailed = errors.New("all_channels_failed")
)
