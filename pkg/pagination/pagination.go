// Package pagination holds the list-size bounds shared by HTTP handlers and
// the services behind them.
package pagination

const (
	// DefaultLimit is the page size handlers use when ?limit is absent.
	DefaultLimit = 25
	// MaxLimit is the largest ?limit a handler accepts.
	MaxLimit = 100
)

// Bounds is a service-level page size policy.
type Bounds struct {
	Default int
	Max     int
}

// Clamp maps a non-positive limit to Default and caps it at Max.
func (b Bounds) Clamp(limit int) int {
	if limit <= 0 {
		limit = b.Default
	}
	if b.Max > 0 && limit > b.Max {
		limit = b.Max
	}
	return limit
}
