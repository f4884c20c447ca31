package core

import (
	"sync"

	"github.com/google/uuid"
	"github.com/valter-silva-au/todo/pkg/models"
)

// PreviewRegistry creates and revokes preview handles. Every handle it hands
// out stays live, pinning its bytes, until Revoke is called for it.
type PreviewRegistry interface {
	Create(mime string, data []byte) *models.PreviewHandle
	Revoke(h *models.PreviewHandle)
	Live() int
}

type memoryPreviewRegistry struct {
	mu   sync.Mutex
	live map[string]*models.PreviewHandle
}

// NewPreviewRegistry returns an in-process PreviewRegistry.
func NewPreviewRegistry() PreviewRegistry {
	return &memoryPreviewRegistry{live: make(map[string]*models.PreviewHandle)}
}

func (r *memoryPreviewRegistry) Create(mime string, data []byte) *models.PreviewHandle {
	h := models.NewPreviewHandle("blob:"+uuid.NewString(), mime, data)
	r.mu.Lock()
	r.live[h.URL] = h
	r.mu.Unlock()
	return h
}

// Revoke is a no-op for nil or already revoked handles.
func (r *memoryPreviewRegistry) Revoke(h *models.PreviewHandle) {
	if h == nil {
		return
	}
	r.mu.Lock()
	delete(r.live, h.URL)
	r.mu.Unlock()
	h.Drop()
}

func (r *memoryPreviewRegistry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}
