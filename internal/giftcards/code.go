package giftcards

import (
	"strings"

	"github.com/google/uuid"
)

// codeAlphabet has 32 symbols, so byte%32 is unbiased. 0/O and 1/I are left
// out to keep printed codes readable.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	codeGroups    = 4
	codeGroupSize = 4
)

// GenerateCode returns a random XXXX-XXXX-XXXX-XXXX code.
func GenerateCode() string {
	raw := uuid.New()
	var b strings.Builder
	b.Grow(codeGroups*codeGroupSize + codeGroups - 1)
	for i := 0; i < codeGroups*codeGroupSize; i++ {
		if i > 0 && i%codeGroupSize == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(codeAlphabet[int(raw[i])%len(codeAlphabet)])
	}
	return b.String()
}

// NormalizeCode upper-cases and trims user input so lookups are case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
