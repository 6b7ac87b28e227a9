package types

import (
	"crypto/rand"
	"fmt"
	"hash/fnv"
	"time"
)

// idAlphabet is the character set for id suffixes.
const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandSuffix returns n random characters from the id alphabet.
func RandSuffix(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	for i := range buf {
		buf[i] = idAlphabet[int(buf[i])%len(idAlphabet)]
	}
	return string(buf)
}

// NewProcessingID builds a batch processing id: <kind>_<utcCompactTs>_<rand3>.
// The id is unique per batch attempt; collision probability is negligible
// given one drain per tick.
func NewProcessingID(kind Kind, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s", kind, now.UTC().Format("20060102150405"), RandSuffix(3))
}

// ObjectName builds the staged-object name for a batch under the kind's
// configured prefix: <prefix><kind>_<utcCompactTs>_<rand>.json.
// The processing id already carries kind, timestamp and randomiser, so the
// object name derives from it directly.
func ObjectName(prefix, processingID string) string {
	return prefix + processingID + ".json"
}

// LoadJobID derives the warehouse load-job id for a batch:
// load_<kind>_<processingId>_<suffix3>. The suffix is a stable function of
// the processing id, so re-submitting the same batch produces the same job
// id and the warehouse rejects the duplicate. Retries of a batch therefore
// dedup naturally.
func LoadJobID(kind Kind, processingID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(processingID))
	sum := h.Sum32()
	suffix := make([]byte, 3)
	for i := range suffix {
		suffix[i] = idAlphabet[int(sum)%len(idAlphabet)]
		sum /= uint32(len(idAlphabet))
	}
	return fmt.Sprintf("load_%s_%s_%s", kind, processingID, suffix)
}
