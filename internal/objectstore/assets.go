package objectstore

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// UploadKey builds the storage key for a lane-worker-generated asset, under
// the per-session uploads prefix spec.md §4.11 names: uploads/{sid}/<ts>.<ext>.
func UploadKey(sessionID string, nowUnixNano int64, ext string) string {
	if ext != "" && ext[0] != '.' {
		ext = "." + ext
	}
	return path.Join("uploads", sessionID, fmt.Sprintf("%d%s", nowUnixNano, ext))
}

// AssetURL builds the relative HTTP URL the frontend uses to fetch a stored
// asset back, in the `GET /api/assets/{sid}/{filename}` shape spec.md §6
// names: key is always "uploads/{sid}/{filename}", so sid/filename are
// recovered by splitting it.
func AssetURL(key string) string {
	sid, filename, ok := splitUploadKey(key)
	if !ok {
		return ""
	}
	return "/api/assets/" + sid + "/" + filename
}

// splitUploadKey recovers the (sessionID, filename) pair UploadKey encoded.
func splitUploadKey(key string) (sid, filename string, ok bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 || parts[0] != "uploads" || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// Now returns the current time as UnixNano, used to timestamp upload keys.
func Now() int64 { return time.Now().UnixNano() }
