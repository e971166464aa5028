package blob

import (
	"context"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		mode Mode
	}{
		{"empty", "", ModeNone},
		{"store id", "60a7c3e8f1d2a94b8c3e1f05", ModeID},
		{"uppercase id", "60A7C3E8F1D2A94B8C3E1F05", ModeID},
		{"too short", "60a7c3e8f1d2a94b8c3e1f0", ModePath},
		{"non hex", "60a7c3e8f1d2a94b8c3e1f0z", ModePath},
		{"local path", "/uploads/9f3b0a.pdf", ModePath},
		{"url", "https://cdn.example.com/a.png", ModePath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := Parse(tt.in)
			assert.Equal(t, tt.mode, ref.Mode())
			assert.Equal(t, tt.in, ref.String())
		})
	}
}

func TestReferenceJSONRoundTrip(t *testing.T) {
	ref := Parse("60a7c3e8f1d2a94b8c3e1f05")
	data, err := ref.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"60a7c3e8f1d2a94b8c3e1f05"`, string(data))

	var got Reference
	require.NoError(t, got.UnmarshalJSON(data))
	assert.True(t, got.IsID())
	assert.Equal(t, ref, got)
}

func TestReferenceURL(t *testing.T) {
	base := "/api/files"
	assert.Equal(t, "/api/files/60a7c3e8f1d2a94b8c3e1f05", FromID("60a7c3e8f1d2a94b8c3e1f05").URL(base))
	assert.Equal(t, "/uploads/a.pdf", FromPath("/uploads/a.pdf").URL(base))
	assert.Equal(t, "", None().URL(base))
}

type fakeStore struct {
	available bool
	uploadErr error
	deleteErr error

	uploaded []Meta
	deleted  []string
	nextID   string
}

func (s *fakeStore) Available() bool { return s.available }

func (s *fakeStore) Upload(_ context.Context, _ []byte, meta Meta) (string, error) {
	if s.uploadErr != nil {
		return "", s.uploadErr
	}
	s.uploaded = append(s.uploaded, meta)
	return s.nextID, nil
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *fakeStore) Download(context.Context, string) ([]byte, error) { return nil, ErrNotFound }
func (s *fakeStore) Open(context.Context, string) (io.ReadCloser, Info, error) {
	return nil, Info{}, ErrNotFound
}
func (s *fakeStore) Stat(context.Context, string) (Info, error) { return Info{}, ErrNotFound }

type fakeFallback struct {
	saveErr error
	saved   []string
	removed []string
}

func (f *fakeFallback) Save(_ []byte, filename string) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	path := "/uploads/" + filename
	f.saved = append(f.saved, path)
	return path, nil
}

func (f *fakeFallback) Remove(path string) error {
	f.removed = append(f.removed, path)
	return nil
}

func TestUploaderPut(t *testing.T) {
	ctx := context.Background()
	meta := Meta{Filename: "a.pdf", ContentType: "application/pdf"}

	t.Run("store available", func(t *testing.T) {
		store := &fakeStore{available: true, nextID: "60a7c3e8f1d2a94b8c3e1f05"}
		u := NewUploader(store, &fakeFallback{}, nil)
		ref, err := u.Put(ctx, []byte("x"), meta)
		require.NoError(t, err)
		assert.True(t, ref.IsID())
		assert.Equal(t, "60a7c3e8f1d2a94b8c3e1f05", ref.String())
	})

	t.Run("store down falls back to disk", func(t *testing.T) {
		fb := &fakeFallback{}
		u := NewUploader(&fakeStore{available: false}, fb, nil)
		ref, err := u.Put(ctx, []byte("x"), meta)
		require.NoError(t, err)
		assert.True(t, ref.IsPath())
		assert.Equal(t, []string{"/uploads/a.pdf"}, fb.saved)
	})

	t.Run("upload error falls back to disk", func(t *testing.T) {
		store := &fakeStore{available: true, uploadErr: errors.New("boom")}
		fb := &fakeFallback{}
		u := NewUploader(store, fb, nil)
		ref, err := u.Put(ctx, []byte("x"), meta)
		require.NoError(t, err)
		assert.True(t, ref.IsPath())
	})

	t.Run("both down", func(t *testing.T) {
		u := NewUploader(&fakeStore{}, &fakeFallback{saveErr: errors.New("disk full")}, nil)
		ref, err := u.Put(ctx, []byte("x"), meta)
		assert.Error(t, err)
		assert.True(t, ref.IsNone())
	})
}

func TestUploaderReplace(t *testing.T) {
	ctx := context.Background()
	old := FromID("111111111111111111111111")
	meta := Meta{Filename: "b.png"}

	t.Run("new referenced before old deleted", func(t *testing.T) {
		store := &fakeStore{available: true, nextID: "222222222222222222222222"}
		u := NewUploader(store, &fakeFallback{}, nil)
		ref, err := u.Replace(ctx, old, []byte("x"), meta)
		require.NoError(t, err)
		assert.Equal(t, "222222222222222222222222", ref.String())
		assert.Equal(t, []string{"111111111111111111111111"}, store.deleted)
	})

	t.Run("upload failure keeps old reference", func(t *testing.T) {
		store := &fakeStore{available: true, uploadErr: errors.New("boom")}
		u := NewUploader(store, &fakeFallback{saveErr: errors.New("disk full")}, nil)
		ref, err := u.Replace(ctx, old, []byte("x"), meta)
		assert.Error(t, err)
		assert.Equal(t, old, ref)
		assert.Empty(t, store.deleted)
	})

	t.Run("old delete failure still returns new", func(t *testing.T) {
		store := &fakeStore{available: true, nextID: "222222222222222222222222", deleteErr: errors.New("boom")}
		u := NewUploader(store, &fakeFallback{}, nil)
		ref, err := u.Replace(ctx, old, []byte("x"), meta)
		require.NoError(t, err)
		assert.Equal(t, "222222222222222222222222", ref.String())
	})
}

func TestUploaderRemove(t *testing.T) {
	ctx := context.Background()

	t.Run("clears even when store is down", func(t *testing.T) {
		u := NewUploader(&fakeStore{available: false}, &fakeFallback{}, nil)
		ref := u.Remove(ctx, FromID("111111111111111111111111"))
		assert.True(t, ref.IsNone())
	})

	t.Run("path mode removes from disk", func(t *testing.T) {
		fb := &fakeFallback{}
		u := NewUploader(&fakeStore{}, fb, nil)
		ref := u.Remove(ctx, FromPath("/uploads/a.pdf"))
		assert.True(t, ref.IsNone())
		assert.Equal(t, []string{"/uploads/a.pdf"}, fb.removed)
	})
}

func TestUploaderCleanup(t *testing.T) {
	store := &fakeStore{available: true, deleteErr: errors.New("boom")}
	fb := &fakeFallback{}
	u := NewUploader(store, fb, nil)

	// delete failures must not stop the remaining references from being tried
	u.Cleanup(context.Background(),
		FromID("111111111111111111111111"),
		FromPath("/uploads/a.pdf"),
		None(),
	)
	assert.Equal(t, []string{"/uploads/a.pdf"}, fb.removed)
}
