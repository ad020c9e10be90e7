package policy

import (
	"fmt"
	"strconv"
	"strings"
)

// SenderPolicy decides whether a sender identifier may submit frames
type SenderPolicy interface {
	Allowed(id uint8) bool
}

// AllowList is an immutable set of sender identifiers
type AllowList struct {
	members [256]bool
	count   int
}

// NewAllowList creates an allow-list containing ids
func NewAllowList(ids ...uint8) *AllowList {
	al := &AllowList{}
	for _, id := range ids {
		if !al.members[id] {
			al.members[id] = true
			al.count++
		}
	}
	return al
}

// Allowed reports whether id is in the list
func (al *AllowList) Allowed(id uint8) bool {
	return al.members[id]
}

// Len returns the number of allowed senders
func (al *AllowList) Len() int {
	return al.count
}

// Senders returns the allowed identifiers in ascending order
func (al *AllowList) Senders() []uint8 {
	ids := make([]uint8, 0, al.count)
	for id, ok := range al.members {
		if ok {
			ids = append(ids, uint8(id))
		}
	}
	return ids
}

// String returns a comma separated list of allowed identifiers
func (al *AllowList) String() string {
	parts := make([]string, 0, al.count)
	for _, id := range al.Senders() {
		parts = append(parts, strconv.Itoa(int(id)))
	}
	return strings.Join(parts, ",")
}

// ParseSenders parses a comma separated list such as "0, 1,7"
func ParseSenders(s string) ([]uint8, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var ids []uint8
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, err := strconv.ParseUint(part, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid sender identifier %q: must be 0..255", part)
		}
		ids = append(ids, uint8(id))
	}

	return ids, nil
}
