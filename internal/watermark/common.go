package watermark

import (
	"mime"
	"path/filepath"
	"strings"
)

type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
)

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".tif": true, ".tiff": true,
}

var videoExts = map[string]bool{
	".mp4": true, ".mov": true, ".mkv": true, ".webm": true, ".avi": true, ".m4v": true,
}

// DetectKind classifies an upload by extension, falling back to the declared
// content type. ok is false for anything that is neither image nor video.
func DetectKind(filename, contentType string) (kind MediaKind, ok bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case imageExts[ext]:
		return KindImage, true
	case videoExts[ext]:
		return KindVideo, true
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch {
		case strings.HasPrefix(mt, "image/"):
			return KindImage, true
		case strings.HasPrefix(mt, "video/"):
			return KindVideo, true
		}
	}
	return "", false
}

// VideoExt returns the extension to keep for a video upload. Unknown
// extensions become .mp4.
func VideoExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if videoExts[ext] {
		return ext
	}
	return ".mp4"
}
