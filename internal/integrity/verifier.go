// Package integrity implements IntegrityVerifier: the post-completion
// checksum check TaskEngine runs against a Record's destination file
// when globalSettings.downloadVerifyChecksum is set and the Record
// carries a non-empty fileChecksum.
package integrity

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// FileVerifier computes and checks file hashes.
type FileVerifier struct{}

func NewFileVerifier() *FileVerifier {
	return &FileVerifier{}
}

// Verify reports an error unless the file at path hashes to expected
// under algo. Hex digests are compared case-insensitively, since a
// Record's fileChecksum may have been supplied in either case.
func (v *FileVerifier) Verify(path string, algo string, expected string) error {
	actual, err := CalculateHash(path, algo)
	if err != nil {
		return err
	}

	if !strings.EqualFold(actual, expected) {
		return fmt.Errorf("%s checksum mismatch for %s: expected %s, got %s", algo, path, expected, actual)
	}

	return nil
}

// CalculateHash hashes the file at filePath; algorithm is "sha256" or "md5".
func CalculateHash(filePath string, algorithm string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var hash string
	switch algorithm {
	case "sha256":
		hasher := sha256.New()
		if _, err := io.Copy(hasher, file); err != nil {
			return "", err
		}
		hash = hex.EncodeToString(hasher.Sum(nil))
	case "md5":
		hasher := md5.New()
		if _, err := io.Copy(hasher, file); err != nil {
			return "", err
		}
		hash = hex.EncodeToString(hasher.Sum(nil))
	default:
		return "", fmt.Errorf("unsupported algorithm: %s", algorithm)
	}

	return hash, nil
}
