package mongodb

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/activity"
)

type activityRepository struct {
	col *mongo.Collection
}

var _ activity.Repository = (*activityRepository)(nil)

func NewActivityRepository(db *mongo.Database) activity.Repository {
	return &activityRepository{col: db.Collection(colActivities)}
}

func (r *activityRepository) Create(ctx context.Context, rec activity.Record) (activity.Record, error) {
	res, err := r.col.InsertOne(ctx, rec)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return activity.Record{}, activity.ErrExists
		}
		return activity.Record{}, errors.Wrap(err, "inserting activity")
	}
	rec.ID = res.InsertedID.(primitive.ObjectID)
	return rec, nil
}

// Upsert overwrites the (account, type, resource) record in place so
// resubmissions never duplicate.
func (r *activityRepository) Upsert(ctx context.Context, rec activity.Record) (activity.Record, error) {
	filter := bson.M{"account": rec.Account, "type": rec.Type, "resource": rec.Resource}
	update := bson.M{
		"$set": bson.M{
			"resourceType": rec.ResourceType,
			"extra":        rec.Extra,
			"updatedAt":    rec.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"account":   rec.Account,
			"type":      rec.Type,
			"resource":  rec.Resource,
			"createdAt": rec.CreatedAt,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var out activity.Record
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out); err != nil {
		return activity.Record{}, errors.Wrap(err, "upserting activity")
	}
	return out, nil
}

func (r *activityRepository) GetByID(ctx context.Context, id primitive.ObjectID) (activity.Record, error) {
	var rec activity.Record
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return activity.Record{}, activity.ErrNotFound
		}
		return activity.Record{}, errors.Wrap(err, "finding activity by id")
	}
	return rec, nil
}

func (r *activityRepository) Find(ctx context.Context, account primitive.ObjectID, typ string, resource primitive.ObjectID) (activity.Record, error) {
	var rec activity.Record
	err := r.col.FindOne(ctx, bson.M{"account": account, "type": typ, "resource": resource}).Decode(&rec)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return activity.Record{}, activity.ErrNotFound
		}
		return activity.Record{}, errors.Wrap(err, "finding activity")
	}
	return rec, nil
}

func (r *activityRepository) Filter(ctx context.Context, account primitive.ObjectID, filter activity.QueryFilter, args core.ListArgs) ([]activity.Record, int64, error) {
	query := bson.M{"account": account}
	if filter.Type != "" {
		query["type"] = filter.Type
	}
	if filter.Resource != "" {
		id, err := primitive.ObjectIDFromHex(filter.Resource)
		if err != nil {
			return nil, 0, core.NewValidationError(err, core.FieldError{Field: "resource", Error: "must be a valid resource id"})
		}
		query["resource"] = id
	}

	var recs []activity.Record
	total, err := findPage(ctx, r.col, query, args, bson.D{{Key: "createdAt", Value: -1}}, &recs)
	return recs, total, err
}

func (r *activityRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "deleting activity")
	}
	if res.DeletedCount == 0 {
		return activity.ErrNotFound
	}
	return nil
}
