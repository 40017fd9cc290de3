package crypto

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// Algorithm names a digest function candidates are hashed with.
type Algorithm string

const (
	MD5        Algorithm = "md5"
	SHA1       Algorithm = "sha1"
	SHA256     Algorithm = "sha256"
	SHA512     Algorithm = "sha512"
	SHA3_256   Algorithm = "sha3-256"
	Keccak256  Algorithm = "keccak256"
	Blake2b256 Algorithm = "blake2b-256"
)

// Errors
var (
	ErrUnknownAlgorithm = errors.New("unknown digest algorithm")
	ErrInvalidTarget    = errors.New("invalid target digest")
)

var constructors = map[Algorithm]func() hash.Hash{
	MD5:       md5.New,
	SHA1:      sha1.New,
	SHA256:    sha256.New,
	SHA512:    sha512.New,
	SHA3_256:  sha3.New256,
	Keccak256: sha3.NewLegacyKeccak256,
	Blake2b256: func() hash.Hash {
		// only fails for keys longer than 64 bytes
		h, _ := blake2b.New256(nil)
		return h
	},
}

// ParseAlgorithm resolves a case-insensitive algorithm name.
func ParseAlgorithm(name string) (Algorithm, error) {
	a := Algorithm(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := constructors[a]; !ok {
		return "", fmt.Errorf("%w: %q (supported: %s)", ErrUnknownAlgorithm, name, strings.Join(Algorithms(), ", "))
	}
	return a, nil
}

// Algorithms returns the supported algorithm names in sorted order.
func Algorithms() []string {
	names := make([]string, 0, len(constructors))
	for a := range constructors {
		names = append(names, string(a))
	}
	sort.Strings(names)
	return names
}

// New returns a fresh hasher. Hashers are not safe for concurrent use, so every
// search task gets its own.
func (a Algorithm) New() hash.Hash {
	ctor, ok := constructors[a]
	if !ok {
		panic(fmt.Sprintf("crypto: %v: %q", ErrUnknownAlgorithm, string(a)))
	}
	return ctor()
}

// Size returns the digest length in bytes.
func (a Algorithm) Size() int {
	return a.New().Size()
}

// ParseTarget normalizes a hex digest (optional 0x prefix, any case) and decodes it,
// checking the length against the algorithm.
func ParseTarget(hexStr string, a Algorithm) ([]byte, error) {
	h := strings.ToLower(strings.TrimSpace(hexStr))
	h = strings.TrimPrefix(h, "0x")
	if h == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidTarget)
	}
	target, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if want := a.Size(); len(target) != want {
		return nil, fmt.Errorf("%w: got %d bytes, %s digests are %d bytes", ErrInvalidTarget, len(target), a, want)
	}
	return target, nil
}

// Sum hashes data in one shot.
func Sum(a Algorithm, data []byte) []byte {
	h := a.New()
	_, _ = h.Write(data)
	return h.Sum(nil)
}

// SumHex returns the lowercase hex digest of s.
func SumHex(a Algorithm, s string) string {
	return hex.EncodeToString(Sum(a, []byte(s)))
}
