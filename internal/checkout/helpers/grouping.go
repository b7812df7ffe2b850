package helpers

import (
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
)

// Line is one requested product and quantity.
type Line struct {
	ProductID uuid.UUID
	Quantity  int
}

// MergeLines sums quantities of repeated products and returns the lines
// sorted by product id, so stock rows are always locked in the same order.
func MergeLines(lines []Line) []Line {
	totals := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		totals[line.ProductID] += line.Quantity
	}
	merged := make([]Line, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, Line{ProductID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].ProductID.String() < merged[j].ProductID.String()
	})
	return merged
}

// ProductIDs returns the product ids of lines in order.
func ProductIDs(lines []Line) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	return ids
}

// VendorIDs returns the distinct vendors of the order items in first-seen order.
func VendorIDs(items []models.OrderItem) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.VendorID]; ok {
			continue
		}
		seen[item.VendorID] = struct{}{}
		ids = append(ids, item.VendorID)
	}
	return ids
}
