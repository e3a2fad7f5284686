package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns a prefixed, globally unique identifier, e.g. "sale-8f14…".
func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
