// Package hash provides content digests for file equality checks.
//
// Hash manifests record the algorithm they were written with, so the same
// Hasher can be selected again when an installation is compared against its
// base or against a candidate. SHA-256 is the default; XXH3-128 is available
// for large installations where a cryptographic digest is not required.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/xxh3"
)

// Supported algorithm names.
const (
	AlgorithmSHA256 = "sha256"
	AlgorithmXXH3   = "xxh3"
)

// Hasher provides an abstraction for file hashing operations.
type Hasher interface {
	// HashFile computes the hash of the file at the given path.
	HashFile(path string) (string, error)

	// Algorithm returns the name recorded alongside produced hashes.
	Algorithm() string
}

// New returns the Hasher for the named algorithm.
// An empty name selects SHA-256.
func New(algorithm string) (Hasher, error) {
	switch algorithm {
	case "", AlgorithmSHA256:
		return NewSHA256Hasher(), nil
	case AlgorithmXXH3:
		return NewXXH3Hasher(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
}

// SHA256Hasher implements Hasher using SHA-256.
type SHA256Hasher struct{}

// NewSHA256Hasher creates a new SHA256Hasher.
func NewSHA256Hasher() *SHA256Hasher {
	return &SHA256Hasher{}
}

// HashFile computes the SHA-256 hash of the file at the given path.
func (h *SHA256Hasher) HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Algorithm returns "sha256".
func (h *SHA256Hasher) Algorithm() string {
	return AlgorithmSHA256
}

// XXH3Hasher implements Hasher using the 128-bit XXH3 digest.
type XXH3Hasher struct{}

// NewXXH3Hasher creates a new XXH3Hasher.
func NewXXH3Hasher() *XXH3Hasher {
	return &XXH3Hasher{}
}

// HashFile computes the XXH3-128 hash of the file at the given path.
func (h *XXH3Hasher) HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	hasher := xxh3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	sum := hasher.Sum128().Bytes()
	return hex.EncodeToString(sum[:]), nil
}

// Algorithm returns "xxh3".
func (h *XXH3Hasher) Algorithm() string {
	return AlgorithmXXH3
}
