package gatecode

import (
	"crypto/rand"
	"fmt"
)

// Alphabet for venue check-in codes. Gate staff read these aloud and type
// them into kiosks, so the ambiguous glyphs (0/O, 1/I/L, U/V) are left out.
const alphabet = "23456789ABCDEFGHJKMNPQRSTWXYZ"

const (
	MinLength = 6
	MaxLength = 32
	// DefaultLength keeps the collision space large enough for big venues
	// while staying short enough to print on a wristband.
	DefaultLength = 10
)

// Generate creates a cryptographically secure random check-in code.
func Generate(length int) (string, error) {
	if length < MinLength || length > MaxLength {
		return "", fmt.Errorf("invalid code length %d: must be between %d and %d", length, MinLength, MaxLength)
	}

	// Rejection sampling to avoid modulo bias.
	// 232 is the largest multiple of 29 below 256.
	const maxRandomByte = 232

	code := make([]byte, length)
	buf := make([]byte, length*2)
	written := 0

	for written < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read secure random bytes: %w", err)
		}

		for _, b := range buf {
			if b >= maxRandomByte {
				continue
			}
			code[written] = alphabet[int(b)%len(alphabet)]
			written++
			if written == length {
				break
			}
		}
	}

	return string(code), nil
}

// GenerateBatch creates count distinct codes. Collisions inside one batch are
// regenerated; with a 29-character alphabet at the default length they are
// effectively impossible, but a batch with duplicates would violate the
// unique index on the codes table.
func GenerateBatch(count, length int) ([]string, error) {
	if count <= 0 {
		return nil, fmt.Errorf("invalid batch size %d", count)
	}

	seen := make(map[string]struct{}, count)
	codes := make([]string, 0, count)
	for len(codes) < count {
		code, err := Generate(length)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}
