package store

import (
	"crypto/sha256"
	"encoding/hex"
	"mime"
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// ComputeStoragePath returns the deterministic path a version's file lives
// at when no explicit stored path is recorded: documents_dir / 2-char hash
// shard / filename derived from (hash, mime, source_url, title) + a
// mime-derived extension.
func ComputeStoragePath(documentsDir, contentHash, mimeType, sourceURL, title string) string {
	shard := "00"
	if len(contentHash) >= 2 {
		shard = contentHash[:2]
	}
	name := filenameDerivedFrom(contentHash, title, sourceURL)
	ext := extensionForMime(mimeType)
	return filepath.Join(documentsDir, shard, name+ext)
}

// ResolvePath returns storedPath if non-empty, else the deterministic path.
func ResolvePath(documentsDir, storedPath, contentHash, mimeType, sourceURL, title string) string {
	if storedPath != "" {
		return storedPath
	}
	return ComputeStoragePath(documentsDir, contentHash, mimeType, sourceURL, title)
}

// filenameDerivedFrom builds a filesystem-safe basename. Title is preferred
// over the source URL when present; the content hash is always appended so
// collisions between differently-titled documents with the same rendered
// name can't alias.
func filenameDerivedFrom(contentHash, title, sourceURL string) string {
	base := strings.TrimSpace(title)
	if base == "" {
		base = strings.TrimSpace(sourceURL)
	}
	base = unsafeFilenameChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_")
	if len(base) > 80 {
		base = base[:80]
	}
	shortHash := contentHash
	if len(shortHash) > 16 {
		shortHash = shortHash[:16]
	}
	if base == "" {
		return shortHash
	}
	return base + "-" + shortHash
}

func extensionForMime(mimeType string) string {
	if mimeType == "" {
		return ""
	}
	exts, err := mime.ExtensionsByType(mimeType)
	if err == nil && len(exts) > 0 {
		return exts[0]
	}
	switch mimeType {
	case "application/pdf":
		return ".pdf"
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/tiff":
		return ".tiff"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "video/mp4":
		return ".mp4"
	case "message/rfc822":
		return ".eml"
	default:
		return ""
	}
}

// HashImageBytes computes the OCR-result dedup key: a deterministic function
// of the rendered page's bytes and page number.
func HashImageBytes(data []byte, pageNumber int) string {
	h := sha256.New()
	h.Write(data)
	h.Write([]byte{byte(pageNumber >> 24), byte(pageNumber >> 16), byte(pageNumber >> 8), byte(pageNumber)})
	return hex.EncodeToString(h.Sum(nil))
}
