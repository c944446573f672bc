package o3chat

import "strings"

// joinURL appends path to base with exactly one slash between them.
func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
