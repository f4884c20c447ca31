package core

import (
	"errors"
	"fmt"

	"github.com/valter-silva-au/todo/pkg/models"
)

// AttachmentCodec converts attachments between the in-memory form used while
// editing and the storable form kept on tasks.
type AttachmentCodec struct {
	previews PreviewRegistry
}

// NewAttachmentCodec creates a codec that allocates preview handles from
// previews. A nil registry gets a private in-process one.
func NewAttachmentCodec(previews PreviewRegistry) *AttachmentCodec {
	if previews == nil {
		previews = NewPreviewRegistry()
	}
	return &AttachmentCodec{previews: previews}
}

// Previews returns the registry handles are allocated from.
func (c *AttachmentCodec) Previews() PreviewRegistry {
	return c.previews
}

// ToStorable strips handles and flags. Attachments that still carry their
// stored payload are passed through untouched, so repeated edit/cancel
// cycles never re-encode.
func (c *AttachmentCodec) ToStorable(a models.Attachment) models.StoredAttachment {
	if a.Stored != nil {
		return a.Stored.Clone()
	}
	data := make([]int, len(a.Data))
	for i, b := range a.Data {
		data[i] = int(b)
	}
	size := a.Size
	if size == 0 {
		size = int64(len(a.Data))
	}
	return models.StoredAttachment{
		Name: a.Name,
		Type: a.Type,
		Size: size,
		Data: data,
	}
}

// FromStorable rebuilds the byte payload and, for images, opens a preview
// handle the caller now owns and must release with ReleasePreview.
func (c *AttachmentCodec) FromStorable(s models.StoredAttachment) (models.Attachment, error) {
	data, err := decodeBytes(s.Data)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("decoding attachment %q: %w", s.Name, err)
	}
	stored := s.Clone()
	a := models.Attachment{
		Name:       s.Name,
		Type:       s.Type,
		Size:       s.Size,
		Data:       data,
		IsExisting: true,
		Stored:     &stored,
	}
	if models.IsImage(s.Type) {
		a.Preview = c.previews.Create(s.Type, data)
	}
	return a, nil
}

// DecodeAll rebuilds every stored attachment, skipping malformed entries. The
// returned error joins one ErrCodec per skipped entry; the good attachments
// are returned either way and the caller owns their previews.
func (c *AttachmentCodec) DecodeAll(stored []models.StoredAttachment) ([]models.Attachment, error) {
	out := make([]models.Attachment, 0, len(stored))
	var errs []error
	for _, s := range stored {
		a, err := c.FromStorable(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, a)
	}
	return out, errors.Join(errs...)
}

// NewAttachment wraps freshly supplied file content. Images get a preview
// handle owned by the caller.
func (c *AttachmentCodec) NewAttachment(name, mime string, data []byte) models.Attachment {
	buf := append([]byte(nil), data...)
	a := models.Attachment{
		Name: name,
		Type: mime,
		Size: int64(len(buf)),
		Data: buf,
	}
	if models.IsImage(mime) {
		a.Preview = c.previews.Create(mime, buf)
	}
	return a
}

// ReleasePreview revokes a's preview handle, if any. Calling it twice is safe.
func (c *AttachmentCodec) ReleasePreview(a *models.Attachment) {
	if a == nil || a.Preview == nil {
		return
	}
	c.previews.Revoke(a.Preview)
	a.Preview = nil
}

// ValidateStored checks that every value of s is a byte.
func ValidateStored(s models.StoredAttachment) error {
	_, err := decodeBytes(s.Data)
	return err
}

// SanitizeStored drops malformed attachments from a task's list. The returned
// error joins one ErrCodec per dropped entry.
func SanitizeStored(in []models.StoredAttachment) ([]models.StoredAttachment, error) {
	out := make([]models.StoredAttachment, 0, len(in))
	var errs []error
	for _, s := range in {
		if err := ValidateStored(s); err != nil {
			errs = append(errs, fmt.Errorf("attachment %q: %w", s.Name, err))
			continue
		}
		out = append(out, s)
	}
	return out, errors.Join(errs...)
}

func decodeBytes(values []int) ([]byte, error) {
	out := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: value %d at offset %d", ErrCodec, v, i)
		}
		out[i] = byte(v)
	}
	return out, nil
}

// CarryOver wraps stored attachments as existing ones without decoding them,
// for updates that leave attachments unchanged. No previews are created.
func CarryOver(stored []models.StoredAttachment) []models.Attachment {
	out := make([]models.Attachment, len(stored))
	for i := range stored {
		st := stored[i].Clone()
		out[i] = models.Attachment{Name: st.Name, Type: st.Type, Size: st.Size, IsExisting: true, Stored: &st}
	}
	return out
}
