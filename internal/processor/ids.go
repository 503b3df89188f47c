package processor

import (
	"strings"

	"github.com/google/uuid"
)

// Identifiers minted against the sandbox processor. Shapes follow the
// processor's own prefixes so records stay interchangeable with live
// mode.

func NewIntentID() string {
	return "pi_" + compactUUID()
}

func NewClientSecret(intentID string) string {
	return intentID + "_secret_" + compactUUID()
}

func NewPayoutID() string {
	return "po_" + compactUUID()
}

func compactUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
