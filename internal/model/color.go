package model

import (
	"fmt"
	"math/rand/v2"
)

// RandomColor returns a random "#rrggbb" display color for a newly
// provisioned user or group.
func RandomColor() string {
	return fmt.Sprintf("#%06x", rand.IntN(0x1000000))
}
