package streaminfo

import (
	"time"

	"github.com/cctvwall/cctvwall/config"
)

// StaggerDelay is the first-attempt delay for the tile at index. Dense
// (substream) grids are spaced further apart.
func StaggerDelay(index int, dense bool) time.Duration {
	if index < 0 {
		index = 0
	}
	base := config.StaggerSparse
	if dense {
		base = config.StaggerDense
	}
	return time.Duration(index+1) * base
}
