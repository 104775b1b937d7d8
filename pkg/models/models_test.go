package models

import (
	"errors"
	"strings"
	"testing"
)

func TestMimeType_IsValid(t *testing.T) {
	tests := []struct {
		mime MimeType
		want bool
	}{
		{MimePNG, true},
		{MimeJPEG, true},
		{MimeJPG, true},
		{MimeWebP, true},
		{"image/gif", false},
		{"", false},
		{"IMAGE/PNG", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.mime), func(t *testing.T) {
			if got := tt.mime.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMimeTypeFromExtension(t *testing.T) {
	tests := []struct {
		ext    string
		want   MimeType
		wantOK bool
	}{
		{".png", MimePNG, true},
		{"PNG", MimePNG, true},
		{".jpg", MimeJPEG, true},
		{".jpeg", MimeJPEG, true},
		{".webp", MimeWebP, true},
		{".gif", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			got, ok := MimeTypeFromExtension(tt.ext)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("MimeTypeFromExtension(%q) = %q, %v; want %q, %v", tt.ext, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestMimeType_Extension(t *testing.T) {
	if MimeJPG.Extension() != "jpg" || MimeJPEG.Extension() != "jpg" {
		t.Error("jpeg variants should map to jpg")
	}
	if MimeWebP.Extension() != "webp" {
		t.Errorf("webp extension = %q", MimeWebP.Extension())
	}
	if MimePNG.Extension() != "png" {
		t.Errorf("png extension = %q", MimePNG.Extension())
	}
}

func TestImagePayload_Validate(t *testing.T) {
	tests := []struct {
		name    string
		payload ImagePayload
		wantErr error
	}{
		{"valid png", NewImagePayload(MimePNG, []byte{1}), nil},
		{"valid jpg alias", NewImagePayload(MimeJPG, []byte{1}), nil},
		{"empty data", NewImagePayload(MimePNG, nil), ErrEmptyImage},
		{"bad mime", NewImagePayload("image/bmp", []byte{1}), ErrUnsupportedMimeType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestImagePayload_Clone(t *testing.T) {
	orig := NewImagePayload(MimePNG, []byte("abc"))
	clone := orig.Clone()
	clone.Data[0] = 'z'

	if string(orig.Data) != "abc" {
		t.Errorf("Clone() shares backing array: orig = %q", orig.Data)
	}
	if clone.MimeType != MimePNG {
		t.Errorf("Clone() mime = %q", clone.MimeType)
	}

	if !(ImagePayload{}).Clone().IsZero() {
		t.Error("Clone() of zero payload should stay zero")
	}
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	wantOrder := []string{
		"ancient-egypt", "victorian-london", "roaring-20s", "cyberpunk-2077",
		"wild-west", "medieval-knight", "space-explorer", "prehistoric",
	}
	ids := c.IDs()
	if len(ids) != len(wantOrder) {
		t.Fatalf("IDs() returned %d eras, want %d", len(ids), len(wantOrder))
	}
	for i, id := range wantOrder {
		if ids[i] != id {
			t.Errorf("IDs()[%d] = %q, want %q", i, ids[i], id)
		}
	}

	seen := make(map[string]bool)
	for _, era := range c.List() {
		if seen[era.ID] {
			t.Errorf("duplicate era id %q", era.ID)
		}
		seen[era.ID] = true
		if strings.TrimSpace(era.Prompt) == "" {
			t.Errorf("era %q has empty prompt", era.ID)
		}
		if era.Name == "" || era.Icon == "" || era.Color == "" {
			t.Errorf("era %q is missing display fields: %+v", era.ID, era)
		}
	}
}

func TestCatalog_Get(t *testing.T) {
	c := DefaultCatalog()

	era, ok := c.Get("wild-west")
	if !ok {
		t.Fatal("Get(wild-west) not found")
	}
	if era.Name != "Wild West" {
		t.Errorf("Get(wild-west).Name = %q", era.Name)
	}

	if _, ok := c.Get("atlantis"); ok {
		t.Error("Get(atlantis) found, want missing")
	}
}

func TestCatalog_ListIsACopy(t *testing.T) {
	c := DefaultCatalog()
	list := c.List()
	list[0].Name = "mutated"

	if era, _ := c.Get(list[0].ID); era.Name == "mutated" {
		t.Error("List() exposes internal storage")
	}
}

func TestCatalog_Register(t *testing.T) {
	c := NewCatalog()

	if err := c.Register(Era{ID: "moon", Prompt: "On the moon."}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := c.Register(Era{ID: "moon", Prompt: "Again."}); !errors.Is(err, ErrDuplicateEra) {
		t.Errorf("Register(duplicate) error = %v, want ErrDuplicateEra", err)
	}
	if err := c.Register(Era{ID: "", Prompt: "x"}); !errors.Is(err, ErrInvalidEra) {
		t.Errorf("Register(empty id) error = %v, want ErrInvalidEra", err)
	}
	if err := c.Register(Era{ID: "mars", Prompt: "  "}); !errors.Is(err, ErrInvalidEra) {
		t.Errorf("Register(empty prompt) error = %v, want ErrInvalidEra", err)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}
