package utils

import "strings"

// SanitizeTaskID makes a hierarchical task ID safe for filesystem paths.
// Task IDs use dots as level separators (P1.M2.T3.S4); persisted filenames
// replace them with underscores (P1_M2_T3_S4).
func SanitizeTaskID(id string) string {
	sanitized := strings.ReplaceAll(id, ".", "_")

	// Path separators must never reach a filename.
	sanitized = strings.ReplaceAll(sanitized, "/", "-")
	sanitized = strings.ReplaceAll(sanitized, "\\", "-")
	sanitized = strings.ReplaceAll(sanitized, " ", "-")

	return sanitized
}
