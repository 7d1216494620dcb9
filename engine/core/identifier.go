package core

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateLabel produces a debug label for a device resource. Callers
// that do not care about naming pass an empty base and still get a
// unique label, which keeps validation-layer messages attributable.
func GenerateLabel(base string) string {
	if base == "" {
		base = "resource"
	}
	return fmt.Sprintf("%s-%s", base, uuid.New().String()[:8])
}
