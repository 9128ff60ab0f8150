package tools

import (
	"strings"
	"sync"
)

// LastBase64Marker is the post_request answer value replaced with the most
// recent base64 image produced by run_code.
const LastBase64Marker = "USE_LAST_BASE64"

const minBase64Length = 500

// State holds values shared between tools within one process.
type State struct {
	mu         sync.RWMutex
	lastBase64 string
}

// SetLastBase64 remembers an encoded image answer.
func (s *State) SetLastBase64(v string) {
	s.mu.Lock()
	s.lastBase64 = v
	s.mu.Unlock()
}

// LastBase64 returns the remembered image answer, if any.
func (s *State) LastBase64() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastBase64
}

// looksLikeBase64Image matches PNG base64 payloads and data URIs.
func looksLikeBase64Image(s string) bool {
	if len(s) <= minBase64Length {
		return false
	}
	return strings.HasPrefix(s, "iVBORw0KG") || strings.HasPrefix(s, "data:image")
}
