package backend

import (
	"context"
	"strings"
)

// Registry maps a backend key to a Backend. Keys are exact strings:
// "ocr", "whisper", "ocr:<name>", "custom:<name>", or a bare "<name>".
type Registry struct {
	byKey map[string]Backend
}

func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]Backend)}
}

// Register binds a backend under an explicit key, in addition to whatever
// natural key its BackendID implies.
func (r *Registry) Register(key string, b Backend) {
	r.byKey[key] = b
}

// RegisterOcr registers b under "ocr:<id>", and also under the bare "ocr"
// key if that key is not already taken (first OCR adapter registered wins
// the default, matching "ocr defaults to ocr:tesseract when available").
func (r *Registry) RegisterOcr(b Backend) {
	r.byKey["ocr:"+b.BackendID()] = b
	if _, taken := r.byKey["ocr"]; !taken {
		r.byKey["ocr"] = b
	}
}

func (r *Registry) RegisterWhisper(b Backend) {
	r.byKey["whisper"] = b
}

func (r *Registry) RegisterCustom(name string, b Backend) {
	r.byKey["custom:"+strings.ToLower(name)] = b
}

// Get returns the backend bound to key, if any.
func (r *Registry) Get(key string) (Backend, bool) {
	b, ok := r.byKey[key]
	return b, ok
}

// GetBackendsFor resolves an ordered method list against a mimetype into an
// ordered list of available, capable backends, one per method that
// resolves. Methods that resolve to nothing are silently dropped; callers
// should fail the stage if the result is empty and the config required at
// least one of them.
func (r *Registry) GetBackendsFor(ctx context.Context, methods []string, mimeType string) []Backend {
	var resolved []Backend
	for _, method := range methods {
		if b, ok := r.resolveOne(ctx, method, mimeType); ok {
			resolved = append(resolved, b)
		}
	}
	return resolved
}

// resolveOne implements the per-method key search order: exact keys for
// "ocr"/"whisper", then lower-cased method, "custom:<lower>", "ocr:<lower>".
// The first key whose backend supports the mimetype and reports available
// wins.
func (r *Registry) resolveOne(ctx context.Context, method, mimeType string) (Backend, bool) {
	lower := strings.ToLower(method)

	var keys []string
	switch lower {
	case "ocr":
		keys = []string{"ocr"}
	case "whisper":
		keys = []string{"whisper"}
	default:
		keys = []string{lower, "custom:" + lower, "ocr:" + lower}
	}

	for _, key := range keys {
		b, ok := r.byKey[key]
		if !ok {
			continue
		}
		if !b.SupportsMimetype(mimeType) {
			continue
		}
		if !b.IsAvailable(ctx) {
			continue
		}
		return b, true
	}
	return nil, false
}

// All returns every registered backend, deduplicated by identity (the
// default "ocr" key and "ocr:<id>" key for the same adapter count once).
func (r *Registry) All() []Backend {
	seen := make(map[Backend]bool)
	var all []Backend
	for _, b := range r.byKey {
		if !seen[b] {
			seen[b] = true
			all = append(all, b)
		}
	}
	return all
}
