package r2client

import "path"

// ScopedKey places key under a scope directory:
// ScopedKey("locks/notify.lock", "abc") is "locks/abc/notify.lock".
// An empty scope returns key unchanged.
func ScopedKey(key, scope string) string {
	if scope == "" {
		return key
	}
	dir, file := path.Split(key)
	return path.Join(dir, scope, file)
}
