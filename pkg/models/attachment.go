package models

import "strings"

// StoredAttachment is the storage-safe form of an attachment: plain values
// only, with the payload as a numeric byte sequence.
type StoredAttachment struct {
	Name string `yaml:"name" json:"name"`
	Type string `yaml:"type" json:"type"`
	Size int64  `yaml:"size" json:"size"`
	Data []int  `yaml:"data,flow" json:"data"`
}

// Clone returns a deep copy of a.
func (a StoredAttachment) Clone() StoredAttachment {
	out := a
	if a.Data != nil {
		out.Data = append([]int(nil), a.Data...)
	}
	return out
}

// PreviewHandle is a transient reference that lets a renderer show binary
// content without persisting it. It pins its bytes until revoked.
type PreviewHandle struct {
	URL  string
	Type string

	data []byte
}

// NewPreviewHandle binds a handle URL to data.
func NewPreviewHandle(url, mime string, data []byte) *PreviewHandle {
	return &PreviewHandle{URL: url, Type: mime, data: data}
}

// Bytes returns the content the handle pins, or nil once released.
func (h *PreviewHandle) Bytes() []byte {
	if h == nil {
		return nil
	}
	return h.data
}

// Drop clears the pinned bytes.
func (h *PreviewHandle) Drop() {
	if h != nil {
		h.data = nil
	}
}

// Attachment is the in-memory form used inside an editing session.
//
// IsExisting marks attachments carried over from a saved task; Stored then
// holds their untouched storable payload. New attachments carry raw bytes only.
type Attachment struct {
	Name       string
	Type       string
	Size       int64
	Data       []byte
	Preview    *PreviewHandle
	IsExisting bool
	Stored     *StoredAttachment
}

// IsImage reports whether mime names an image type.
func IsImage(mime string) bool {
	return strings.HasPrefix(strings.ToLower(mime), "image/")
}
