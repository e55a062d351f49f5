// Package code allocates the human-facing reservation codes, a fixed prefix
// followed by a fixed number of random decimal digits (EVT-04217).
package code

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
)

// ErrExhausted is returned when no unused code was found within the
// attempt bound. It means the code space is too small for the current
// volume and should be treated as an operational failure.
var ErrExhausted = errors.New("cannot allocate unique code")

// Generator produces codes of the form Prefix + Digits decimal digits.
// The zero value is usable: Digits below 1 counts as 1, MaxAttempts below
// 1 as 1, and randomness comes from crypto/rand.
type Generator struct {
	Prefix      string
	Digits      int
	MaxAttempts int

	rand io.Reader
}

// New returns a Generator reading from crypto/rand.
func New(prefix string, digits, maxAttempts int) *Generator {
	return newWithReader(prefix, digits, maxAttempts, rand.Reader)
}

func newWithReader(prefix string, digits, maxAttempts int, r io.Reader) *Generator {
	return &Generator{Prefix: prefix, Digits: digits, MaxAttempts: maxAttempts, rand: r}
}

func (g *Generator) digits() int {
	if g.Digits < 1 {
		return 1
	}
	return g.Digits
}

func (g *Generator) attempts() int {
	if g.MaxAttempts < 1 {
		return 1
	}
	return g.MaxAttempts
}

func (g *Generator) reader() io.Reader {
	if g.rand == nil {
		return rand.Reader
	}
	return g.rand
}

// Generate returns one random code. It does not check for collisions.
func (g *Generator) Generate() (string, error) {
	d := g.digits()
	space := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(d)), nil)
	n, err := rand.Int(g.reader(), space)
	if err != nil {
		return "", fmt.Errorf("code: read random: %w", err)
	}
	return fmt.Sprintf("%s%0*d", g.Prefix, d, n), nil
}

// GenerateUnique draws codes until exists reports one as unused, giving up
// with ErrExhausted after MaxAttempts draws. Errors from exists abort the
// search and are returned as is.
func (g *Generator) GenerateUnique(exists func(string) (bool, error)) (string, error) {
	n := g.attempts()
	for i := 0; i < n; i++ {
		c, err := g.Generate()
		if err != nil {
			return "", err
		}
		taken, err := exists(c)
		if err != nil {
			return "", err
		}
		if !taken {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrExhausted, n)
}

// IsValidFormat reports whether s has the prefix, the length and a
// digit-only suffix of codes produced by g.
func (g *Generator) IsValidFormat(s string) bool {
	if len(s) != len(g.Prefix)+g.digits() || !strings.HasPrefix(s, g.Prefix) {
		return false
	}
	return allDigits(s[len(g.Prefix):])
}

// Canonical maps user input to the stored form of a code: surrounding
// space is dropped and the prefix is matched without regard to case. It
// reports false when s cannot be a code of g.
func (g *Generator) Canonical(s string) (string, bool) {
	s = strings.TrimSpace(s)
	p := len(g.Prefix)
	if len(s) != p+g.digits() || !strings.EqualFold(s[:p], g.Prefix) || !allDigits(s[p:]) {
		return "", false
	}
	return g.Prefix + s[p:], true
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
