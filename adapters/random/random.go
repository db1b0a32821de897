// Package random provides randomness implementations, including the digit
// code generator behind generated one-time-code fields.
package random

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"

	"github.com/victorteokw/docmap/ports"
)

// Real uses crypto/rand for secure randomness.
type Real struct{}

// Bytes generates n cryptographically secure random bytes.
func (Real) Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// String generates a random hex string of n characters.
func (r Real) String(n int) (string, error) {
	b, err := r.Bytes((n + 1) / 2)
	if err != nil {
		return "", err
	}
	s := hex.EncodeToString(b)
	if len(s) > n {
		s = s[:n]
	}
	return s, nil
}

// Digits generates a random string of exactly n decimal digits. Leading
// zeros are kept; "0042" is a valid four-digit code.
func (Real) Digits(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("digit count must be positive, got %d", n)
	}
	out := make([]byte, n)
	for i := range out {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		out[i] = byte('0' + d.Int64())
	}
	return string(out), nil
}

// Ensure interface compliance.
var (
	_ ports.Random        = Real{}
	_ ports.CodeGenerator = Real{}
)

// Fake provides deterministic randomness for testing.
type Fake struct {
	mu      sync.Mutex
	counter int
	codes   []string // preset digit codes, consumed in order
	index   int
}

// NewFake creates a fake random source.
func NewFake() *Fake {
	return &Fake{}
}

// WithCodes sets preset digit codes to return from Digits, in order.
func (f *Fake) WithCodes(codes ...string) *Fake {
	f.codes = codes
	f.index = 0
	return f
}

// Bytes returns deterministic bytes based on an internal counter.
func (f *Fake) Bytes(n int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter++
	b := make([]byte, n)
	for i := range b {
		b[i] = byte((f.counter + i) % 256)
	}
	return b, nil
}

// String returns a deterministic hex string.
func (f *Fake) String(n int) (string, error) {
	b, err := f.Bytes((n + 1) / 2)
	if err != nil {
		return "", err
	}
	s := hex.EncodeToString(b)
	if len(s) > n {
		s = s[:n]
	}
	return s, nil
}

// Digits returns the next preset code, or a counter-derived code when none
// are preset. Always exactly n digits.
func (f *Fake) Digits(n int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index < len(f.codes) {
		code := f.codes[f.index]
		f.index++
		return code, nil
	}
	f.counter++
	code := fmt.Sprintf("%0*d", n, f.counter)
	if len(code) > n {
		code = code[len(code)-n:]
	}
	return code, nil
}

// Reset resets the fake to initial state.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter = 0
	f.index = 0
}

// Ensure interface compliance.
var (
	_ ports.Random        = (*Fake)(nil)
	_ ports.CodeGenerator = (*Fake)(nil)
)
