package linestream

import (
	"crypto/md5"  //nolint:gosec // MD5 used for content verification, not security
	"crypto/sha1" //nolint:gosec // SHA1 used for content verification, not security
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"hash/crc32"
	"io"

	"github.com/cespare/xxhash/v2"
)

// HashType represents a hash algorithm used for content verification.
type HashType string

const (
	// HashNone indicates no hash.
	HashNone HashType = ""

	// HashMD5 is the MD5 hash algorithm.
	HashMD5 HashType = "md5"

	// HashSHA1 is the SHA-1 hash algorithm.
	HashSHA1 HashType = "sha1"

	// HashSHA256 is the SHA-256 hash algorithm.
	HashSHA256 HashType = "sha256"

	// HashCRC32C is the CRC32C checksum.
	HashCRC32C HashType = "crc32c"

	// HashXXH64 is the 64-bit xxHash checksum. Fast and non-cryptographic,
	// the default for content comparison in pipeline verification.
	HashXXH64 HashType = "xxh64"
)

// String returns the string representation of the hash type.
func (h HashType) String() string {
	return string(h)
}

// SupportedHashes returns all supported hash types.
func SupportedHashes() []HashType {
	return []HashType{HashMD5, HashSHA1, HashSHA256, HashCRC32C, HashXXH64}
}

// NewHash creates a new hash.Hash for the given hash type.
// Returns nil if the hash type is not supported.
func NewHash(t HashType) hash.Hash {
	switch t {
	case HashMD5:
		return md5.New() //nolint:gosec // MD5 used for content verification
	case HashSHA1:
		return sha1.New() //nolint:gosec // SHA1 used for content verification
	case HashSHA256:
		return sha256.New()
	case HashCRC32C:
		return crc32.New(crc32.MakeTable(crc32.Castagnoli))
	case HashXXH64:
		return xxhash.New()
	default:
		return nil
	}
}

// HashReader computes the hash of data from a reader.
// Returns the hex-encoded hash string.
func HashReader(r io.Reader, t HashType) (string, error) {
	h := NewHash(t)
	if h == nil {
		return "", ErrNotSupported
	}

	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes computes the hash of a byte slice.
// Returns the hex-encoded hash string.
func HashBytes(data []byte, t HashType) string {
	h := NewHash(t)
	if h == nil {
		return ""
	}

	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
