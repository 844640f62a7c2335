package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// fakeS3 keeps objects in a map and answers missing keys the way S3 does.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	fail    error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "no such key"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = data
	f.types[*in.Key] = *in.ContentType
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[*in.Key]; !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound", Message: "not found"}
	}
	return &s3.HeadObjectOutput{}, nil
}

// stores runs fn against a Local and an S3Store.
func stores(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()
	t.Run("local", func(t *testing.T) {
		l, err := NewLocal(filepath.Join(t.TempDir(), "artifacts"))
		if err != nil {
			t.Fatalf("NewLocal() failed: %v", err)
		}
		fn(t, l)
	})
	t.Run("s3", func(t *testing.T) {
		fn(t, NewS3(newFakeS3(), "bucket", "bindkit"))
	})
}

// =============================================================================
// Store contract
// =============================================================================

func TestPutGet(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.Put(ctx, "glue/ab/demo.go", []byte("package demo\n")); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}
		if err := s.Put(ctx, "glue/ab/demo.go", []byte("package v2\n")); err != nil {
			t.Fatalf("Put() replace failed: %v", err)
		}
		got, err := s.Get(ctx, "glue/ab/demo.go")
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if string(got) != "package v2\n" {
			t.Errorf("Get() = %q", got)
		}
	})
}

func TestMissing(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if _, err := s.Get(ctx, "none.go"); !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("Get() error = %v, want fs.ErrNotExist", err)
		}
		ok, err := s.Exists(ctx, "none.go")
		if err != nil || ok {
			t.Errorf("Exists() = %v, %v; want false, nil", ok, err)
		}
		if err := s.Delete(ctx, "none.go"); err != nil {
			t.Errorf("Delete() of absent path failed: %v", err)
		}
	})
}

func TestExistsAndDelete(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.Put(ctx, "a/b.go", nil); err != nil {
			t.Fatal(err)
		}
		if ok, err := s.Exists(ctx, "a/b.go"); err != nil || !ok {
			t.Fatalf("Exists() = %v, %v; want true, nil", ok, err)
		}
		if err := s.Delete(ctx, "a/b.go"); err != nil {
			t.Fatalf("Delete() failed: %v", err)
		}
		if ok, _ := s.Exists(ctx, "a/b.go"); ok {
			t.Error("Exists() after Delete() = true")
		}
	})
}

func TestInvalidPaths(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, p := range []string{"", ".", "/abs.go", "../up.go", "a/../b.go", "a//b.go"} {
			if err := s.Put(ctx, p, nil); !errors.Is(err, ErrInvalidPath) {
				t.Errorf("Put(%q) error = %v, want ErrInvalidPath", p, err)
			}
			if _, err := s.Get(ctx, p); !errors.Is(err, ErrInvalidPath) {
				t.Errorf("Get(%q) error = %v, want ErrInvalidPath", p, err)
			}
		}
	})
}

// =============================================================================
// Backend details
// =============================================================================

func TestLocalLeavesNoTempFiles(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Put(context.Background(), "x/y.go", []byte("y")); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(filepath.Join(l.Root(), "x"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "y.go" {
		t.Errorf("directory holds %v, want only y.go", entries)
	}
}

func TestS3KeysAndContentType(t *testing.T) {
	fake := newFakeS3()
	ctx := context.Background()
	if err := NewS3(fake, "b", "cache/v1").Put(ctx, "glue/d.go", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := NewS3(fake, "b", "").Put(ctx, "entry.json", []byte("{}")); err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"cache/v1/glue/d.go": "text/x-go; charset=utf-8",
		"entry.json":         "application/json",
	}
	for k, ct := range want {
		if fake.types[k] != ct {
			t.Errorf("object %q content type = %q, want %q", k, fake.types[k], ct)
		}
	}
}

func TestS3PropagatesErrors(t *testing.T) {
	fake := newFakeS3()
	fake.fail = &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
	s := NewS3(fake, "b", "")
	ctx := context.Background()

	var apiErr smithy.APIError
	if _, err := s.Get(ctx, "x"); !errors.As(err, &apiErr) || errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Get() error = %v, want the API error", err)
	}
	if _, err := s.Exists(ctx, "x"); !errors.As(err, &apiErr) {
		t.Errorf("Exists() error = %v, want the API error", err)
	}
	if err := s.Put(ctx, "x", nil); !errors.As(err, &apiErr) {
		t.Errorf("Put() error = %v, want the API error", err)
	}
	if err := s.Delete(ctx, "x"); !errors.As(err, &apiErr) {
		t.Errorf("Delete() error = %v, want the API error", err)
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&smithy.GenericAPIError{Code: "NotFound"}, true},
		{&smithy.GenericAPIError{Code: "NoSuchKey"}, true},
		{&smithy.GenericAPIError{Code: "NoSuchBucket"}, false},
		{errors.New("NotFound"), false},
	}
	for _, tt := range tests {
		if got := isNotFound(tt.err); got != tt.want {
			t.Errorf("isNotFound(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
