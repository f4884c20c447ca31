package core

import (
	"bytes"
	"testing"

	"github.com/valter-silva-au/todo/pkg/models"
	"pgregory.net/rapid"
)

// Encoding then decoding an attachment restores its bytes and metadata, and
// every preview handed out can be released.
func TestProperty_AttachmentRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		reg := NewPreviewRegistry()
		c := NewAttachmentCodec(reg)

		name := rapid.StringMatching(`[a-z]{1,10}\.[a-z]{2,4}`).Draw(t, "name")
		mime := rapid.SampledFrom([]string{"image/png", "image/jpeg", "application/pdf", "text/plain"}).Draw(t, "mime")
		data := rapid.SliceOfN(rapid.Byte(), 0, 256).Draw(t, "data")

		a := c.NewAttachment(name, mime, data)
		stored := c.ToStorable(a)
		if stored.Size != int64(len(data)) {
			t.Fatalf("Size = %d, want %d", stored.Size, len(data))
		}
		for _, v := range stored.Data {
			if v < 0 || v > 255 {
				t.Fatalf("encoded value %d out of byte range", v)
			}
		}

		back, err := c.FromStorable(stored)
		if err != nil {
			t.Fatalf("FromStorable: %v", err)
		}
		if !bytes.Equal(back.Data, data) && !(len(back.Data) == 0 && len(data) == 0) {
			t.Fatalf("bytes differ after round trip")
		}
		if back.Name != name || back.Type != mime {
			t.Fatalf("metadata differs: %q %q", back.Name, back.Type)
		}
		if (back.Preview != nil) != models.IsImage(mime) {
			t.Fatalf("preview presence mismatch for %s", mime)
		}

		c.ReleasePreview(&a)
		c.ReleasePreview(&back)
		if reg.Live() != 0 {
			t.Fatalf("%d previews still live", reg.Live())
		}
	})
}
