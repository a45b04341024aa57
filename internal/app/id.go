package app

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// generateID produces a random hex identifier.
// Isolated here so the ID strategy can evolve independently.
func generateID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	const hex = "0123456789abcdef"
	out := make([]byte, 32)
	for i, v := range b {
		out[i*2] = hex[v>>4]
		out[i*2+1] = hex[v&0x0f]
	}
	return string(out), nil
}

// newProgramCode builds the human-readable business code, e.g.
// PRG-2026-MF3K2A-417. Unlike the opaque id it is meant to be read
// aloud and typed.
func newProgramCode() string {
	now := time.Now().UTC()
	ts := strings.ToUpper(strconv.FormatInt(now.Unix(), 36))
	suffix := int64(0)
	if n, err := rand.Int(rand.Reader, big.NewInt(900)); err == nil {
		suffix = n.Int64()
	}
	return fmt.Sprintf("PRG-%d-%s-%03d", now.Year(), ts, 100+suffix)
}
