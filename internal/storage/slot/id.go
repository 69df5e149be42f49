package slot

import (
	"regexp"
	"strconv"

	"github.com/yndnr/slotkeep-go/internal/core/domain"
)

const (
	payloadExt = ".sav"
	metaExt    = ".meta"
	tempExt    = ".tmp"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateID checks that id is usable as a blob name on every transport.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return domain.ErrInvalidSlotID.WithDetailsf("%q", id)
	}
	return nil
}

// Numbered returns the id of a numbered slot, e.g. "slot-3".
func Numbered(n int) string {
	return "slot-" + strconv.Itoa(n)
}

func payloadName(id string) string { return id + payloadExt }

func metaName(id string) string { return id + metaExt }
