package vk

import (
	"sync"

	"github.com/spaghettifunk/vkframegraph/framegraph"
)

// BackingStore is the single handle -> backing-object table shared by the
// Translator (which materialises/disposes per the compiled frame) and the
// registries (which install persistent backings at allocation time and
// resolve CPU-upload targets). One table means a persistent buffer the
// registry allocated is already present when the frame's materialise
// command reaches the Translator, and a transient the Translator
// materialised is visible to the registry's upload helpers.
type BackingStore struct {
	mu      sync.Mutex
	buffers map[framegraph.ResourceHandle]*Buffer
	images  map[framegraph.ResourceHandle]*Image

	// swapchainImage backs every window-handle texture for the current
	// frame; set once per frame after vkAcquireNextImageKHR.
	swapchainImage *Image
}

func NewBackingStore() *BackingStore {
	return &BackingStore{
		buffers: make(map[framegraph.ResourceHandle]*Buffer),
		images:  make(map[framegraph.ResourceHandle]*Image),
	}
}

func (s *BackingStore) Buffer(h framegraph.ResourceHandle) *Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffers[h]
}

// Image resolves h to its backing image, routing window-handle textures to
// the current swapchain image.
func (s *BackingStore) Image(h framegraph.ResourceHandle) *Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.Flags.Has(framegraph.FlagWindowHandle) {
		return s.swapchainImage
	}
	return s.images[h]
}

func (s *BackingStore) InstallBuffer(h framegraph.ResourceHandle, buf *Buffer) {
	s.mu.Lock()
	s.buffers[h] = buf
	s.mu.Unlock()
}

func (s *BackingStore) InstallImage(h framegraph.ResourceHandle, img *Image) {
	s.mu.Lock()
	s.images[h] = img
	s.mu.Unlock()
}

// RemoveBuffer forgets h and returns what it was backed by, leaving the
// destroy-or-recycle decision to the caller.
func (s *BackingStore) RemoveBuffer(h framegraph.ResourceHandle) *Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.buffers[h]
	delete(s.buffers, h)
	return buf
}

func (s *BackingStore) RemoveImage(h framegraph.ResourceHandle) *Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	img := s.images[h]
	delete(s.images, h)
	return img
}

func (s *BackingStore) SetSwapchainImage(img *Image) {
	s.mu.Lock()
	s.swapchainImage = img
	s.mu.Unlock()
}
