// Package keypath provides sanitization and validation of user-supplied
// paths before they become object keys.
//
// Sanitization and validation are two distinct, composed steps: sanitize
// first (best-effort cleanup of cosmetic issues such as doubled slashes
// from concatenation), then validate the sanitized result (hard
// rejection). Validation never runs on the raw input, and sanitization
// never repairs a traversal attempt into something valid.
package keypath

import (
	"path"
	"strings"
	"unicode"

	"github.com/ezDecode/S3Zen-CloudCore-sub000/errors"
)

const (
	// Delimiter is the pseudo-directory separator used in object keys.
	Delimiter = "/"

	// MaxKeyLength is the store's maximum key length in bytes.
	MaxKeyLength = 1024

	// MaxSegmentLength bounds a single path segment.
	MaxSegmentLength = 255
)

// Sanitize cleans a raw user path and validates the result, returning a
// safe object key. A trailing delimiter is preserved iff the input
// represented a folder.
func Sanitize(raw string) (string, error) {
	cleaned := Clean(raw)
	if err := ValidateKey(cleaned); err != nil {
		return "", err
	}
	return cleaned, nil
}

// SanitizeFolder cleans a raw folder path, forcing exactly one trailing
// delimiter, and validates the result.
func SanitizeFolder(raw string) (string, error) {
	cleaned := strings.TrimSuffix(Clean(raw), Delimiter) + Delimiter
	if err := ValidateKey(cleaned); err != nil {
		return "", err
	}
	return cleaned, nil
}

// Clean performs the cosmetic half of sanitization: collapses repeated
// delimiters, strips a leading delimiter, trims surrounding whitespace
// per segment, and preserves a single trailing delimiter when present.
// Clean is idempotent and performs no rejection.
func Clean(raw string) string {
	folder := strings.HasSuffix(raw, Delimiter)

	segments := strings.Split(raw, Delimiter)
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		out = append(out, seg)
	}

	key := strings.Join(out, Delimiter)
	if folder && key != "" {
		key += Delimiter
	}
	return key
}

// ValidateKey applies the hard rejection rules to an already-cleaned
// key. Returns ErrInvalidPath on any violation.
func ValidateKey(key string) error {
	if key == "" {
		return errors.NewError("validateKey", errors.ErrInvalidPath).
			WithMessage("key cannot be empty")
	}
	if strings.HasPrefix(key, Delimiter) {
		return errors.NewError("validateKey", errors.ErrInvalidPath).
			WithKey(key).
			WithMessage("key cannot start with a delimiter")
	}
	if len(key) > MaxKeyLength {
		return errors.NewError("validateKey", errors.ErrInvalidPath).
			WithKey(key).
			WithMessage("key cannot exceed 1024 bytes")
	}

	for _, seg := range strings.Split(strings.TrimSuffix(key, Delimiter), Delimiter) {
		if err := validateSegment(key, seg); err != nil {
			return err
		}
	}
	return nil
}

// ValidateFolderName reports whether a single folder name (one segment,
// no delimiter) is acceptable.
func ValidateFolderName(name string) bool {
	return validateSegment(name, name) == nil && !strings.Contains(name, Delimiter)
}

// ValidateFileName reports whether a single file name (one segment, no
// delimiter) is acceptable.
func ValidateFileName(name string) bool {
	return ValidateFolderName(name)
}

// HasWellFormedExtension reports whether a file name ends in a usable
// extension: a dot followed by 1-10 alphanumeric characters. Rename uses
// this to decide whether a user-supplied name overrides the original
// extension.
func HasWellFormedExtension(name string) bool {
	ext := path.Ext(name)
	if len(ext) < 2 || len(ext) > 11 {
		return false
	}
	for _, r := range ext[1:] {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func validateSegment(key, seg string) error {
	if seg == "" {
		return errors.NewError("validateKey", errors.ErrInvalidPath).
			WithKey(key).
			WithMessage("empty path segment")
	}
	if seg == "." || seg == ".." {
		return errors.NewError("validateKey", errors.ErrInvalidPath).
			WithKey(key).
			WithMessage("path traversal segment not allowed")
	}
	if len(seg) > MaxSegmentLength {
		return errors.NewError("validateKey", errors.ErrInvalidPath).
			WithKey(key).
			WithMessage("path segment too long")
	}
	for _, r := range seg {
		if r == 0 || unicode.IsControl(r) {
			return errors.NewError("validateKey", errors.ErrInvalidPath).
				WithKey(key).
				WithMessage("control characters not allowed in keys")
		}
		if r == '\\' {
			return errors.NewError("validateKey", errors.ErrInvalidPath).
				WithKey(key).
				WithMessage("backslash not allowed in keys")
		}
	}
	return nil
}
