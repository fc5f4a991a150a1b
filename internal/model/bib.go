package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var bibPattern = regexp.MustCompile(`^\d{1,5}$`)

// ErrZeroBib is returned for a scan of only zeros that is not the blank
// sentinel.
var ErrZeroBib = errors.New("bib number is all zeros")

// NormalizeScan prepares a raw scanner read for storage.
//
// Scanners in keyboard-wedge mode can emit full-width digits when an input
// method is active, so the value is NFKC-folded first. Leading zeros are then
// stripped unless the value is the blank sentinel, so any other run of
// zeros normalizes to "".
func NormalizeScan(raw string) string {
	s := strings.TrimSpace(norm.NFKC.String(raw))
	if s == BlankBib {
		return s
	}
	return strings.TrimLeft(s, "0")
}

// ParseScan normalizes and validates a raw scanner read. An empty read
// returns "" and no error.
func ParseScan(raw string) (string, error) {
	bib := NormalizeScan(raw)
	if bib == "" {
		if s := strings.TrimSpace(raw); s != "" {
			return "", fmt.Errorf("%w: %q", ErrZeroBib, s)
		}
		return "", nil
	}
	if err := ValidateBib(bib); err != nil {
		return "", err
	}
	return bib, nil
}

// ValidateBib checks an operator-entered bib number. Empty means "unset".
func ValidateBib(bib string) error {
	if bib == "" {
		return nil
	}
	if !bibPattern.MatchString(bib) {
		return fmt.Errorf("bib number %q must be a number between 1 and 5 digits", bib)
	}
	return nil
}
