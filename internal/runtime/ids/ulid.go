package ids

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newULID() ulid.ULID {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
}

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
func CreateULID() string {
	return newULID().String()
}

// NewReportID returns a time-sortable report identifier as 32 lowercase hex
// characters, the event id format error collectors expect.
func NewReportID() string {
	id := newULID()
	return hex.EncodeToString(id[:])
}

// ReportTime extracts the creation time embedded in a report identifier.
func ReportTime(reportID string) (time.Time, error) {
	raw, err := hex.DecodeString(reportID)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid report id %q: %w", reportID, err)
	}
	if len(raw) != len(ulid.ULID{}) {
		return time.Time{}, fmt.Errorf("invalid report id %q: expected %d bytes, got %d", reportID, len(ulid.ULID{}), len(raw))
	}
	var id ulid.ULID
	copy(id[:], raw)
	return ulid.Time(id.Time()), nil
}
