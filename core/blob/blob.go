package blob

import (
	"context"
	"encoding/json"
	"io"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

var (
	// ErrUnavailable is returned when the blob store cannot be reached.
	ErrUnavailable = errors.New("blob store unavailable")

	// ErrNotFound is returned when no blob exists for the given id.
	ErrNotFound = errors.New("blob not found")

	idRegex = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
)

// Mode tags the storage location a Reference points at.
type Mode int

const (
	// ModeNone means no blob is attached.
	ModeNone Mode = iota
	// ModeID points at a blob held by the Store, addressed by a 24-hex id.
	ModeID
	// ModePath points at a file on the local fallback disk.
	ModePath
)

// Reference locates an attached blob. It is either empty, a store id,
// or a local path; the shape of the stored string is resolved exactly
// once, when the Reference is parsed.
type Reference struct {
	mode Mode
	val  string
}

// Parse resolves a stored string into a Reference: empty means none,
// a 24-hex string is a store id, anything else is a local path.
func Parse(s string) Reference {
	switch {
	case s == "":
		return Reference{}
	case idRegex.MatchString(s):
		return Reference{mode: ModeID, val: s}
	default:
		return Reference{mode: ModePath, val: s}
	}
}

// FromID makes an id-mode Reference.
func FromID(id string) Reference { return Reference{mode: ModeID, val: id} }

// FromPath makes a path-mode Reference.
func FromPath(path string) Reference { return Reference{mode: ModePath, val: path} }

// None is the empty Reference.
func None() Reference { return Reference{} }

func (r Reference) Mode() Mode     { return r.mode }
func (r Reference) IsNone() bool   { return r.mode == ModeNone }
func (r Reference) IsID() bool     { return r.mode == ModeID }
func (r Reference) IsPath() bool   { return r.mode == ModePath }
func (r Reference) String() string { return r.val }

// ID returns the store id if this is an id-mode Reference.
func (r Reference) ID() (string, bool) { return r.val, r.mode == ModeID }

// Path returns the local path if this is a path-mode Reference.
func (r Reference) Path() (string, bool) { return r.val, r.mode == ModePath }

// URL renders the client-facing location of the blob: id-mode references
// resolve through the files endpoint, path-mode ones are served as-is.
func (r Reference) URL(filesBaseURL string) string {
	switch r.mode {
	case ModeID:
		return filesBaseURL + "/" + r.val
	case ModePath:
		return r.val
	default:
		return ""
	}
}

func (r Reference) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.val)
}

func (r *Reference) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*r = Parse(s)
	return nil
}

func (r Reference) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(r.val)
}

func (r *Reference) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	if t == bsontype.Null {
		*r = Reference{}
		return nil
	}
	raw := bson.RawValue{Type: t, Value: data}
	s, ok := raw.StringValueOK()
	if !ok {
		return errors.Errorf("blob: cannot decode %v into a blob reference", t)
	}
	*r = Parse(s)
	return nil
}

// Upload is a pending attachment: raw content plus its metadata.
type Upload struct {
	Data []byte
	Meta Meta
}

// Meta describes a blob at upload time.
type Meta struct {
	Filename    string
	ContentType string
	Tags        map[string]string
}

// Info describes a stored blob.
type Info struct {
	ID          string
	Filename    string
	ContentType string
	Size        int64
	UploadedAt  time.Time
}

// Store holds blobs addressed by 24-hex ids.
type Store interface {
	// Available reports whether the store can currently serve requests.
	// A store that failed to initialize stays unavailable rather than nil.
	Available() bool
	Upload(ctx context.Context, data []byte, meta Meta) (id string, err error)
	Download(ctx context.Context, id string) ([]byte, error)
	Open(ctx context.Context, id string) (io.ReadCloser, Info, error)
	Delete(ctx context.Context, id string) error
	Stat(ctx context.Context, id string) (Info, error)
}

// FallbackStore persists blobs on local disk when the Store is down.
type FallbackStore interface {
	Save(data []byte, filename string) (path string, err error)
	Remove(path string) error
}

// Logger is the slice of core.Logger the Uploader needs.
type Logger interface {
	Warn(msg string, args ...interface{})
}

// Uploader centralizes the attachment lifecycle shared by every entity
// service: uploads fall back to disk, replacements never drop the old
// blob before the new one is referenced, and deletions are best-effort.
type Uploader struct {
	store    Store
	fallback FallbackStore
	logger   Logger
}

func NewUploader(store Store, fallback FallbackStore, logger Logger) *Uploader {
	return &Uploader{store: store, fallback: fallback, logger: logger}
}

// Put stores data and returns a Reference to it. When the store is
// unavailable or the upload fails, it falls back to disk; entity
// creation must not block on blob-store health, so callers should
// proceed with whatever Reference comes back even on error.
func (u *Uploader) Put(ctx context.Context, data []byte, meta Meta) (Reference, error) {
	if u.store != nil && u.store.Available() {
		id, err := u.store.Upload(ctx, data, meta)
		if err == nil {
			return FromID(id), nil
		}
		u.warn("blob upload failed, falling back to disk", err)
	}
	if u.fallback == nil {
		return None(), errors.Wrap(ErrUnavailable, "blob: no fallback store")
	}
	path, err := u.fallback.Save(data, meta.Filename)
	if err != nil {
		return None(), errors.Wrap(err, "blob: disk fallback")
	}
	return FromPath(path), nil
}

// Replace uploads the new content first and only then deletes the old
// blob, best-effort. If the upload fails the old Reference is returned
// untouched so the entity keeps pointing at valid content.
func (u *Uploader) Replace(ctx context.Context, old Reference, data []byte, meta Meta) (Reference, error) {
	ref, err := u.Put(ctx, data, meta)
	if err != nil {
		return old, err
	}
	u.delete(ctx, old)
	return ref, nil
}

// Remove deletes the referenced blob best-effort and always returns the
// empty Reference: an explicit removal clears the attachment whether or
// not the underlying delete succeeded.
func (u *Uploader) Remove(ctx context.Context, ref Reference) Reference {
	u.delete(ctx, ref)
	return None()
}

// Cleanup deletes every given Reference best-effort. Used when the
// owning document is deleted; failures are logged and swallowed so the
// document deletion itself cannot be blocked by blob-store health.
func (u *Uploader) Cleanup(ctx context.Context, refs ...Reference) {
	for _, ref := range refs {
		u.delete(ctx, ref)
	}
}

func (u *Uploader) delete(ctx context.Context, ref Reference) {
	switch ref.mode {
	case ModeID:
		if u.store == nil || !u.store.Available() {
			u.warn("blob delete skipped, store unavailable", ErrUnavailable)
			return
		}
		if err := u.store.Delete(ctx, ref.val); err != nil && !errors.Is(err, ErrNotFound) {
			u.warn("blob delete failed", err)
		}
	case ModePath:
		if u.fallback == nil {
			return
		}
		if err := u.fallback.Remove(ref.val); err != nil {
			u.warn("fallback blob delete failed", err)
		}
	}
}

func (u *Uploader) warn(msg string, err error) {
	if u.logger != nil {
		u.logger.Warn(msg, err)
	}
}
