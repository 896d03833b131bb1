// Package serial implements the deterministic mapping between a loyalty
// account identity and the serial number embedded in wallet passes and
// barcode payloads.
package serial

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// Serial numbers look like "kawhe-{storeID}-{customerID}".
const prefix = "kawhe"

var serialPattern = regexp.MustCompile(`^kawhe-(\d+)-(\d+)$`)

// ScanIntent distinguishes the two barcode payload flavors produced by
// the QR renderer.
type ScanIntent string

const (
	ScanIntentNone   ScanIntent = ""
	ScanIntentStamp  ScanIntent = "stamp"
	ScanIntentRedeem ScanIntent = "redeem"
)

// Encode builds the serial number for a (store, customer) pair.
func Encode(storeID, customerID snowflake.ID) string {
	return fmt.Sprintf("%s-%d-%d", prefix, storeID, customerID)
}

// Decode parses a serial number. It matches the fixed pattern exactly
// and rejects anything else rather than guessing.
func Decode(serial string) (storeID, customerID snowflake.ID, ok bool) {
	m := serialPattern.FindStringSubmatch(strings.TrimSpace(serial))
	if m == nil {
		return 0, 0, false
	}
	s, err := snowflake.ParseString(m[1])
	if err != nil || s == 0 {
		return 0, 0, false
	}
	c, err := snowflake.ParseString(m[2])
	if err != nil || c == 0 {
		return 0, 0, false
	}
	return s, c, true
}

// StripScanPrefix removes the "LA:" (stamp) or "LR:" (redeem) barcode
// prefix when present and reports which intent it carried.
func StripScanPrefix(raw string) (string, ScanIntent) {
	trimmed := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(trimmed, "LA:"):
		return strings.TrimPrefix(trimmed, "LA:"), ScanIntentStamp
	case strings.HasPrefix(trimmed, "LR:"):
		return strings.TrimPrefix(trimmed, "LR:"), ScanIntentRedeem
	default:
		return trimmed, ScanIntentNone
	}
}
