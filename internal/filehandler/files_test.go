package filehandler

import "testing"

func TestValidateImage(t *testing.T) {
	tests := []struct {
		name    string
		size    int64
		wantErr bool
	}{
		{"photo.jpg", 1024, false},
		{"photo.JPEG", 1024, false},
		{"photo.png", MaxImageBytes, false},
		{"photo.webp", 1024, false},
		{"photo.png", MaxImageBytes + 1, true},
		{"clip.mp4", 1024, true},
		{"notes.txt", 10, true},
		{"noext", 10, true},
	}

	for _, tt := range tests {
		err := ValidateImage(tt.name, tt.size)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateImage(%q, %d) error = %v, wantErr %v", tt.name, tt.size, err, tt.wantErr)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"photo.jpg", "photo.jpg"},
		{"my photo (1).jpg", "my_photo__1_.jpg"},
		{"../../etc/passwd", "passwd"},
		{"café.png", "caf_.png"},
	}

	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReplaceExt(t *testing.T) {
	if got := ReplaceExt("photo.jpg", ".png"); got != "photo.png" {
		t.Errorf("expected photo.png, got %s", got)
	}
	if got := ReplaceExt("photo", ".png"); got != "photo.png" {
		t.Errorf("expected photo.png, got %s", got)
	}
	if got := ReplaceExt("archive.tar.webp", ".jpg"); got != "archive.tar.jpg" {
		t.Errorf("expected archive.tar.jpg, got %s", got)
	}
}
