package chatflow

import "github.com/google/uuid"

// GenerateID returns a random identifier with the given prefix.
func GenerateID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
