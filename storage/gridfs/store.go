// Package gridfs backs the blob store with a MongoDB GridFS bucket.
package gridfs

import (
	"bytes"
	"context"
	"io"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dienlabs/eduportal/core/blob"
)

const bucketName = "uploads"

type Store struct {
	bucket *gridfs.Bucket
	files  *mongo.Collection
}

var _ blob.Store = (*Store)(nil)

// NewStore opens the uploads bucket. A failed initialization yields a
// store that reports unavailable instead of an error, so callers keep a
// usable handle and the disk fallback takes over.
func NewStore(db *mongo.Database) *Store {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName))
	if err != nil {
		return &Store{}
	}
	return &Store{
		bucket: bucket,
		files:  db.Collection(bucketName + ".files"),
	}
}

func (s *Store) Available() bool { return s.bucket != nil }

func (s *Store) Upload(ctx context.Context, data []byte, meta blob.Meta) (string, error) {
	if !s.Available() {
		return "", blob.ErrUnavailable
	}
	md := bson.M{"contentType": meta.ContentType}
	if len(meta.Tags) > 0 {
		md["tags"] = meta.Tags
	}
	id := primitive.NewObjectID()
	err := s.bucket.UploadFromStreamWithID(
		id, meta.Filename, bytes.NewReader(data),
		options.GridFSUpload().SetMetadata(md),
	)
	if err != nil {
		return "", errors.Wrap(err, "gridfs: uploading blob")
	}
	return id.Hex(), nil
}

func (s *Store) Download(ctx context.Context, id string) ([]byte, error) {
	rc, _, err := s.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrap(err, "gridfs: reading blob")
	}
	return data, nil
}

func (s *Store) Open(ctx context.Context, id string) (io.ReadCloser, blob.Info, error) {
	if !s.Available() {
		return nil, blob.Info{}, blob.ErrUnavailable
	}
	info, err := s.Stat(ctx, id)
	if err != nil {
		return nil, blob.Info{}, err
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, blob.Info{}, blob.ErrNotFound
	}
	stream, err := s.bucket.OpenDownloadStream(oid)
	if err != nil {
		if err == gridfs.ErrFileNotFound {
			return nil, blob.Info{}, blob.ErrNotFound
		}
		return nil, blob.Info{}, errors.Wrap(err, "gridfs: opening blob")
	}
	return stream, info, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if !s.Available() {
		return blob.ErrUnavailable
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return blob.ErrNotFound
	}
	if err := s.bucket.Delete(oid); err != nil {
		if err == gridfs.ErrFileNotFound {
			return blob.ErrNotFound
		}
		return errors.Wrap(err, "gridfs: deleting blob")
	}
	return nil
}

func (s *Store) Stat(ctx context.Context, id string) (blob.Info, error) {
	if !s.Available() {
		return blob.Info{}, blob.ErrUnavailable
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return blob.Info{}, blob.ErrNotFound
	}

	var doc struct {
		ID         primitive.ObjectID `bson:"_id"`
		Filename   string             `bson:"filename"`
		Length     int64              `bson:"length"`
		UploadDate primitive.DateTime `bson:"uploadDate"`
		Metadata   struct {
			ContentType string `bson:"contentType"`
		} `bson:"metadata"`
	}
	err = s.files.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return blob.Info{}, blob.ErrNotFound
		}
		return blob.Info{}, errors.Wrap(err, "gridfs: stat blob")
	}
	return blob.Info{
		ID:          doc.ID.Hex(),
		Filename:    doc.Filename,
		ContentType: doc.Metadata.ContentType,
		Size:        doc.Length,
		UploadedAt:  doc.UploadDate.Time(),
	}, nil
}
