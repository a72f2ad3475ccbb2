package file

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"marketetl/internal/datasource"
)

var _ datasource.Source = (*Local)(nil)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "csv", "2020-08-05", "NYSE")
	writeFile(t, filepath.Join(dir, "part-2.txt"), "b")
	writeFile(t, filepath.Join(dir, "part-1.txt"), "a")
	writeFile(t, filepath.Join(dir, "notes.md"), "x")
	writeFile(t, filepath.Join(dir, "UPPER.TXT"), "x")
	writeFile(t, filepath.Join(dir, "nested", "part-3.txt"), "c")
	if err := os.Mkdir(filepath.Join(dir, "dir.txt"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	got, err := Discover(context.Background(), dir, ".txt")
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}
	want := []string{
		filepath.Join(dir, "part-1.txt"),
		filepath.Join(dir, "part-2.txt"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Discover = %#v, want %#v", got, want)
	}
}

func TestDiscover_EmptyAndMissing(t *testing.T) {
	t.Parallel()

	empty := t.TempDir()
	got, err := Discover(context.Background(), empty, ".txt")
	if err != nil || len(got) != 0 {
		t.Fatalf("Discover(empty) = %#v, %v; want empty, nil", got, err)
	}

	_, err = Discover(context.Background(), filepath.Join(empty, "missing"), ".txt")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Discover(missing) err = %v, want ErrNotExist", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Discover(ctx, empty, ".txt"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Discover(canceled) err = %v", err)
	}
}

func TestReadList(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sources.txt")
	writeFile(t, path, `
# NYSE feeds
data/csv/2020-08-05/NYSE
   # indented comment
data/csv/2020-08-06/NYSE

   data/json/2020-08-05/NASDAQ
`)
	got, err := ReadList(path)
	if err != nil {
		t.Fatalf("ReadList error: %v", err)
	}
	want := []string{
		"data/csv/2020-08-05/NYSE",
		"data/csv/2020-08-06/NYSE",
		"data/json/2020-08-05/NASDAQ",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ReadList = %#v, want %#v", got, want)
	}

	if _, err := ReadList(filepath.Join(t.TempDir(), "missing.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("ReadList(missing) err = %v", err)
	}
}

// TestLocalOpen covers success, missing file, and pre-canceled context.
func TestLocalOpen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := filepath.Join(dir, "part-1.txt")
	writeFile(t, p, "2020-08-05,093015,T\n")

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	cases := []struct {
		name        string
		path        string
		ctx         context.Context
		wantErrIs   error
		wantContent string
	}{
		{"success", p, context.Background(), nil, "2020-08-05,093015,T\n"},
		{"missing", filepath.Join(dir, "missing.txt"), context.Background(), os.ErrNotExist, ""},
		{"pre_canceled", p, canceled, context.Canceled, ""},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			l := NewLocal(c.path)
			if l.Path() != c.path {
				t.Fatalf("Path() = %q", l.Path())
			}
			rc, err := l.Open(c.ctx)
			if c.wantErrIs != nil {
				if !errors.Is(err, c.wantErrIs) {
					t.Fatalf("errors.Is(%v, %v) = false", err, c.wantErrIs)
				}
				if rc != nil {
					_ = rc.Close()
					t.Fatalf("got non-nil ReadCloser on error")
				}
				if c.wantErrIs == os.ErrNotExist && !strings.Contains(err.Error(), "open ") {
					t.Fatalf("error %q not wrapped with path", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open() unexpected error: %v", err)
			}
			defer rc.Close()
			got, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("reading: %v", err)
			}
			if string(got) != c.wantContent {
				t.Fatalf("content = %q, want %q", got, c.wantContent)
			}
		})
	}
}

func BenchmarkDiscover(b *testing.B) {
	dir := b.TempDir()
	for i := 0; i < 200; i++ {
		name := filepath.Join(dir, "part-"+strings.Repeat("0", 3)+string(rune('a'+i%26))+string(rune('a'+i/26))+".txt")
		if err := os.WriteFile(name, nil, 0o644); err != nil {
			b.Fatal(err)
		}
	}
	ctx := context.Background()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Discover(ctx, dir, ".txt"); err != nil {
			b.Fatal(err)
		}
	}
}
