package mongodb

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/affiliation"
)

type affiliationRepository struct {
	col *mongo.Collection
}

var _ affiliation.Repository = (*affiliationRepository)(nil)

func NewAffiliationRepository(db *mongo.Database) affiliation.Repository {
	return &affiliationRepository{col: db.Collection(colAffiliations)}
}

func (r *affiliationRepository) Create(ctx context.Context, rec affiliation.Record) (affiliation.Record, error) {
	res, err := r.col.InsertOne(ctx, rec)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return affiliation.Record{}, affiliation.ErrPendingExists
		}
		return affiliation.Record{}, errors.Wrap(err, "inserting submission")
	}
	rec.ID = res.InsertedID.(primitive.ObjectID)
	return rec, nil
}

func (r *affiliationRepository) GetByID(ctx context.Context, id primitive.ObjectID) (affiliation.Record, error) {
	var rec affiliation.Record
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return affiliation.Record{}, affiliation.ErrNotFound
		}
		return affiliation.Record{}, errors.Wrap(err, "finding submission by id")
	}
	return rec, nil
}

func (r *affiliationRepository) GetByAccountKind(ctx context.Context, account primitive.ObjectID, kind string) (affiliation.Record, error) {
	var rec affiliation.Record
	err := r.col.FindOne(ctx, bson.M{"account": account, "kind": kind}).Decode(&rec)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return affiliation.Record{}, affiliation.ErrNotFound
		}
		return affiliation.Record{}, errors.Wrap(err, "finding submission by account")
	}
	return rec, nil
}

func (r *affiliationRepository) Filter(ctx context.Context, filter affiliation.QueryFilter, args core.ListArgs) ([]affiliation.Record, int64, error) {
	query := bson.M{}
	if filter.Kind != "" {
		query["kind"] = filter.Kind
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Account != "" {
		id, err := primitive.ObjectIDFromHex(filter.Account)
		if err != nil {
			return nil, 0, core.NewValidationError(err, core.FieldError{Field: "account", Error: "must be a valid resource id"})
		}
		query["account"] = id
	}
	if filter.Search != "" {
		query["name"] = searchRegex(filter.Search)
	}

	var recs []affiliation.Record
	total, err := findPage(ctx, r.col, query, args, bson.D{{Key: "createdAt", Value: -1}}, &recs)
	return recs, total, err
}

func (r *affiliationRepository) Update(ctx context.Context, rec affiliation.Record) (affiliation.Record, error) {
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": rec.ID}, rec)
	if err != nil {
		return affiliation.Record{}, errors.Wrap(err, "updating submission")
	}
	if res.MatchedCount == 0 {
		return affiliation.Record{}, affiliation.ErrNotFound
	}
	return rec, nil
}

func (r *affiliationRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "deleting submission")
	}
	if res.DeletedCount == 0 {
		return affiliation.ErrNotFound
	}
	return nil
}
