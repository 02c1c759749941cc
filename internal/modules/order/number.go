// README: Human-readable order numbers (SE + yyMMdd + 4 random digits).
package order

import (
	"fmt"
	"math/rand/v2"
	"time"
)

func newOrderNumber(now time.Time) string {
	return fmt.Sprintf("SE%s%04d", now.Format("060102"), rand.IntN(10000))
}
