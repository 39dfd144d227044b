package migration

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/text/encoding/charmap"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestOpenCSVUTF8WithBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("account_code,first_name\n100,דנה\n")...)
	path := writeTemp(t, "account.csv", data)

	f, err := OpenCSV(path, 0)
	if err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}
	defer f.Close()

	if f.Header[0] != "account_code" {
		t.Fatalf("BOM leaked into header: %q", f.Header[0])
	}

	row, err := f.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if row.Get("first_name") != "דנה" {
		t.Fatalf("first_name = %q", row.Get("first_name"))
	}
}

func TestOpenCSVWindows1255Semicolon(t *testing.T) {
	enc := charmap.Windows1255.NewEncoder()
	raw, err := enc.Bytes([]byte("account_code;last_name\n200;כהן\n"))
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	path := writeTemp(t, "account.csv", raw)

	f, err := OpenCSV(path, 0)
	if err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}
	defer f.Close()

	if f.Encoding != "windows-1255" {
		t.Fatalf("encoding = %q, want windows-1255", f.Encoding)
	}

	row, err := f.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if row.Get("last_name") != "כהן" {
		t.Fatalf("last_name = %q", row.Get("last_name"))
	}
}

func TestOpenCSVRowCap(t *testing.T) {
	path := writeTemp(t, "account.csv", []byte("account_code\n1\n2\n3\n"))

	f, err := OpenCSV(path, 2)
	if err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}
	defer f.Close()

	seen := 0
	for {
		_, err := f.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		seen++
	}
	if seen != 2 {
		t.Fatalf("row cap ignored: read %d rows", seen)
	}
}

func TestSniffDelimiterPipe(t *testing.T) {
	if d := sniffDelimiter("a|b|c\n1|2|3\n"); d != '|' {
		t.Fatalf("delimiter = %q, want |", d)
	}
	if d := sniffDelimiter("a,b\n"); d != ',' {
		t.Fatalf("delimiter = %q, want ,", d)
	}
}
