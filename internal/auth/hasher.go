// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Supported hashing algorithms.
const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

// OWASP-recommended argon2id parameters.
const (
	DefaultArgon2Time      = 1         // iterations
	DefaultArgon2MemoryKiB = 64 * 1024 // 64 MB
	DefaultArgon2Threads   = 4         // parallelism
	DefaultBcryptCost      = 12

	argon2SaltLen = 16 // salt length in bytes
	argon2KeyLen  = 32 // output length in bytes

	maxArgon2MemoryKiB = 4 * 1024 * 1024
)

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted hash of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(password, hash string) (bool, error)

	// NeedsUpgrade returns true if the hash was produced with another
	// algorithm or weaker parameters than the hasher is configured for.
	NeedsUpgrade(hash string) bool
}

// HasherConfig is the work factor of a Hasher.
type HasherConfig struct {
	Algorithm       string
	Argon2Time      uint32
	Argon2MemoryKiB uint32
	Argon2Threads   uint8
	BcryptCost      int
}

// DefaultHasherConfig returns the argon2id configuration used in production.
func DefaultHasherConfig() HasherConfig {
	return HasherConfig{
		Algorithm:       AlgorithmArgon2id,
		Argon2Time:      DefaultArgon2Time,
		Argon2MemoryKiB: DefaultArgon2MemoryKiB,
		Argon2Threads:   DefaultArgon2Threads,
		BcryptCost:      DefaultBcryptCost,
	}
}

// Validate checks the configuration for unusable values.
func (c HasherConfig) Validate() error {
	switch c.Algorithm {
	case AlgorithmArgon2id:
		if c.Argon2Time < 1 {
			return oops.Code("HASHER_INVALID_CONFIG").Errorf("argon2 time must be at least 1")
		}
		if c.Argon2Threads < 1 {
			return oops.Code("HASHER_INVALID_CONFIG").Errorf("argon2 threads must be at least 1")
		}
		if c.Argon2MemoryKiB < 8*uint32(c.Argon2Threads) {
			return oops.Code("HASHER_INVALID_CONFIG").
				With("memory_kib", c.Argon2MemoryKiB).
				Errorf("argon2 memory must be at least 8 KiB per thread")
		}
	case AlgorithmBcrypt:
		if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
			return oops.Code("HASHER_INVALID_CONFIG").
				With("cost", c.BcryptCost).
				Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
		}
	default:
		return oops.Code("HASHER_INVALID_CONFIG").
			With("algorithm", c.Algorithm).
			Errorf("unsupported hash algorithm: %s", c.Algorithm)
	}
	return nil
}

// Hasher implements PasswordHasher with argon2id or bcrypt.
// Verify accepts hashes from either algorithm regardless of configuration.
type Hasher struct {
	cfg HasherConfig
}

// NewHasher creates a Hasher with the given work factor.
func NewHasher(cfg HasherConfig) (*Hasher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Hasher{cfg: cfg}, nil
}

// NewArgon2idHasher creates a Hasher with the default argon2id parameters.
func NewArgon2idHasher() *Hasher {
	return &Hasher{cfg: DefaultHasherConfig()}
}

// Hash produces a hash of the password. Empty passwords are hashed like any other.
func (h *Hasher) Hash(password string) (string, error) {
	if h.cfg.Algorithm == AlgorithmBcrypt {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cfg.BcryptCost)
		if err != nil {
			return "", oops.Code(CodeHashingFailed).
				With("algorithm", AlgorithmBcrypt).
				Wrap(err)
		}
		return string(hash), nil
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code(CodeHashingFailed).
			With("operation", "generate salt").
			Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.cfg.Argon2Time, h.cfg.Argon2MemoryKiB, h.cfg.Argon2Threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.cfg.Argon2MemoryKiB,
		h.cfg.Argon2Time,
		h.cfg.Argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks if the password matches the hash.
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	if isBcryptHash(encodedHash) {
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, oops.Code(CodeHashingFailed).
				With("algorithm", AlgorithmBcrypt).
				Wrap(err)
		}
	}

	params, salt, expected, err := parseArgon2id(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(expected)))

	if subtle.ConstantTimeCompare(computed, expected) == 1 {
		return true, nil
	}
	return false, nil
}

// NeedsUpgrade returns true if the hash should be recomputed with the
// configured algorithm and parameters.
func (h *Hasher) NeedsUpgrade(hash string) bool {
	if h.cfg.Algorithm == AlgorithmBcrypt {
		if !isBcryptHash(hash) {
			return true
		}
		cost, err := bcrypt.Cost([]byte(hash))
		return err != nil || cost < h.cfg.BcryptCost
	}

	params, _, _, err := parseArgon2id(hash)
	if err != nil {
		return true
	}
	return params.time < h.cfg.Argon2Time ||
		params.memory < h.cfg.Argon2MemoryKiB ||
		params.threads < h.cfg.Argon2Threads
}

func isBcryptHash(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") ||
		strings.HasPrefix(hash, "$2b$") ||
		strings.HasPrefix(hash, "$2y$")
}

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
}

func parseArgon2id(encodedHash string) (argon2Params, []byte, []byte, error) {
	var params argon2Params

	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return params, nil, nil, oops.Code(CodeHashingFailed).Errorf("invalid hash format")
	}

	if parts[1] != AlgorithmArgon2id {
		return params, nil, nil, oops.Code(CodeHashingFailed).Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return params, nil, nil, oops.Code(CodeHashingFailed).Wrap(err)
	}
	if version != argon2.Version {
		return params, nil, nil, oops.Code(CodeHashingFailed).Errorf("unsupported argon2 version: %d", version)
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return params, nil, nil, oops.Code(CodeHashingFailed).Wrap(err)
	}

	// Validate threads fits in uint8 to prevent silent truncation
	if threads > 255 {
		return params, nil, nil, oops.Code(CodeHashingFailed).Errorf("threads value %d exceeds uint8 max", threads)
	}
	if iterations == 0 || threads == 0 {
		return params, nil, nil, oops.Code(CodeHashingFailed).Errorf("argon2 time and threads must be positive")
	}
	if memory > maxArgon2MemoryKiB {
		return params, nil, nil, oops.Code(CodeHashingFailed).Errorf("memory value %d exceeds limit", memory)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params, nil, nil, oops.Code(CodeHashingFailed).Wrap(err)
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return params, nil, nil, oops.Code(CodeHashingFailed).Wrap(err)
	}

	// Validate key length to prevent integer overflow in uint32 conversion
	if len(key) == 0 || len(key) > 1<<30 {
		return params, nil, nil, oops.Code(CodeHashingFailed).Errorf("invalid hash key length: %d", len(key))
	}

	params = argon2Params{memory: memory, time: iterations, threads: uint8(threads)}
	return params, salt, key, nil
}
