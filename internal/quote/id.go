package quote

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// Alphabet for public quote ids: digits and uppercase letters minus the
// visually ambiguous glyphs 0, O, 1, I, L, 5, S.
const idAlphabet = "2346789ABCDEFGHJKMNPQRTUVWXYZ"

const (
	idLength      = 5
	idMaxAttempts = 3
)

// ErrIDSpaceExhausted means the generator hit the retry bound. Repeated
// collisions at 29^5 candidates indicate a broken random source or a
// saturated identifier space; callers must abort quote creation.
var ErrIDSpaceExhausted = errors.New("quote id generation failed after max attempts")

// PublicIDChecker answers whether a candidate public id is already taken.
type PublicIDChecker interface {
	PublicIDExists(ctx context.Context, publicID string) (bool, error)
}

// GeneratePublicID draws Q-XXXXX candidates from a cryptographically secure
// source and re-checks each against the store. Entropy alone makes
// collisions rare, but uniqueness at issuance is checked, not assumed.
func GeneratePublicID(ctx context.Context, store PublicIDChecker) (string, error) {
	for attempt := 0; attempt < idMaxAttempts; attempt++ {
		candidate, err := randomPublicID()
		if err != nil {
			return "", fmt.Errorf("draw candidate: %w", err)
		}
		taken, err := store.PublicIDExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check candidate: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrIDSpaceExhausted
}

func randomPublicID() (string, error) {
	buf := make([]byte, idLength)
	max := big.NewInt(int64(len(idAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = idAlphabet[n.Int64()]
	}
	return "Q-" + string(buf), nil
}
