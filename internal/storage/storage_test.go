package storage

import "testing"

func TestObjectName(t *testing.T) {
	tests := []struct {
		id, filename, want string
	}{
		{"s1", "march.pdf", "statements/s1/march.pdf"},
		{"s1", "../../etc/passwd", "statements/s1/passwd"},
		{"s1", `C:\scans\april.png`, "statements/s1/april.png"},
		{"s1", "", "statements/s1/document"},
	}
	for _, tt := range tests {
		if got := ObjectName(tt.id, tt.filename); got != tt.want {
			t.Errorf("ObjectName(%q, %q) = %q, want %q", tt.id, tt.filename, got, tt.want)
		}
	}
}

func TestParseURI(t *testing.T) {
	bucket, object, err := ParseURI("gs://my-bucket/path/to/file.pdf", "gs")
	if err != nil || bucket != "my-bucket" || object != "path/to/file.pdf" {
		t.Errorf("got %q %q %v", bucket, object, err)
	}

	for _, bad := range []string{"my-bucket/file.pdf", "gs://my-bucket", "gs://my-bucket/", "mem://b/o"} {
		if _, _, err := ParseURI(bad, "gs"); err == nil {
			t.Errorf("ParseURI(%q) expected error", bad)
		}
	}
}

func TestFilename(t *testing.T) {
	tests := map[string]string{
		"gs://bucket/folder/file.pdf":    "file.pdf",
		"mem://docs/statements/s1/a.png": "a.png",
		"gs://bucket":                    "bucket",
	}
	for uri, want := range tests {
		if got := Filename(uri); got != want {
			t.Errorf("Filename(%q) = %q, want %q", uri, got, want)
		}
	}
}
