package keygen

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
)

const (
	// Alphabet is the symbol set license keys are drawn from.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// GroupSize is the number of characters per dash-separated group.
	GroupSize = 4
	// GroupCount is the number of groups in a key.
	GroupCount = 4
	// KeyLength is the total formatted length including separators.
	KeyLength = GroupCount*GroupSize + (GroupCount - 1)
)

var keyPattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

var alphabetSize = big.NewInt(int64(len(Alphabet)))

// Generate produces a license key of the form XXXX-XXXX-XXXX-XXXX with each
// character drawn independently and uniformly from Alphabet. The generator is
// stateless; uniqueness against the store is the caller's responsibility.
func Generate() string {
	var b strings.Builder
	b.Grow(KeyLength)
	for i := 0; i < GroupCount*GroupSize; i++ {
		if i > 0 && i%GroupSize == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(Alphabet[randomIndex()])
	}
	return b.String()
}

// IsValidFormat reports whether the string matches the exact key wire format.
// Matching is case-sensitive.
func IsValidFormat(key string) bool {
	if len(key) != KeyLength {
		return false
	}
	return keyPattern.MatchString(key)
}

func randomIndex() int {
	n, err := rand.Int(rand.Reader, alphabetSize)
	if err != nil {
		// crypto/rand failing means the platform RNG is broken; issuing
		// guessable keys is worse than crashing.
		panic("keygen: " + err.Error())
	}
	return int(n.Int64())
}
