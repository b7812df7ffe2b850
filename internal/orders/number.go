package orders

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewOrderNumber formats ORD-YYYYMMDD-XXXXXXXX using the UTC date and eight
// random hex digits.
func NewOrderNumber(now time.Time) string {
	id := uuid.New()
	suffix := strings.ToUpper(hex.EncodeToString(id[:4]))
	return "ORD-" + now.UTC().Format("20060102") + "-" + suffix
}
