package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAttachDetachExport(t *testing.T) {
	setupStore(t, seedTasks()...)
	pdf := writeTemp(t, "lease.pdf", []byte("%PDF-1.4 lease"))
	png := writeTemp(t, "receipt.png", []byte("\x89PNG\r\n\x1a\nfake"))

	out, err := runCmd(t, attachCmd, "b2", pdf, png)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if !strings.Contains(out, "Pay rent now has 2 attachment(s)") {
		t.Errorf("output = %q", out)
	}
	task, _ := Store.Get("b2")
	if len(task.Attachments) != 2 || task.Attachments[1].Type != "image/png" {
		t.Fatalf("attachments = %+v", task.Attachments)
	}
	if live := Store.Codec().Previews().Live(); live != 0 {
		t.Errorf("live previews = %d after attach, want 0", live)
	}

	dest := filepath.Join(t.TempDir(), "copy.pdf")
	setFlag(t, exportCmd, "out", dest)
	if _, err := runCmd(t, exportCmd, "b2", "1"); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte("%PDF-1.4 lease")) {
		t.Errorf("exported %q", data)
	}

	out, err = runCmd(t, detachCmd, "b2", "1")
	if err != nil {
		t.Fatalf("detach: %v", err)
	}
	if !strings.Contains(out, "Removed lease.pdf from Pay rent") {
		t.Errorf("output = %q", out)
	}
	task, _ = Store.Get("b2")
	if len(task.Attachments) != 1 || task.Attachments[0].Name != "receipt.png" {
		t.Errorf("attachments after detach = %+v", task.Attachments)
	}
	// Other fields survive the edit round trip.
	if task.DueDate == nil || *task.DueDate != "2026-03-05" {
		t.Errorf("DueDate = %v", task.DueDate)
	}
}

func TestDetachCmd_InvalidNumber(t *testing.T) {
	setupStore(t, seedTasks()...)

	for _, n := range []string{"0", "1", "x"} {
		_, err := runCmd(t, detachCmd, "a1", n)
		if err == nil || !strings.Contains(err.Error(), "invalid attachment number") {
			t.Errorf("detach %s: error = %v", n, err)
		}
	}
}

func TestExportCmd_InvalidNumber(t *testing.T) {
	setupStore(t, seedTasks()...)

	_, err := runCmd(t, exportCmd, "a1", "1")
	if err == nil || !strings.Contains(err.Error(), "has 0 attachment(s)") {
		t.Errorf("error = %v", err)
	}
}

func TestAttachCmd_UnknownTask(t *testing.T) {
	setupStore(t, seedTasks()...)
	path := writeTemp(t, "a.txt", []byte("a"))

	if _, err := runCmd(t, attachCmd, "nope", path); err == nil {
		t.Fatal("expected error for unknown task")
	}
}
