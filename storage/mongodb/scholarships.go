package mongodb

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/scholarship"
)

type scholarshipRepository struct {
	col *mongo.Collection
}

var _ scholarship.Repository = (*scholarshipRepository)(nil)

func NewScholarshipRepository(db *mongo.Database) scholarship.Repository {
	return &scholarshipRepository{col: db.Collection(colScholarships)}
}

func (r *scholarshipRepository) Create(ctx context.Context, sch scholarship.Scholarship) (scholarship.Scholarship, error) {
	res, err := r.col.InsertOne(ctx, sch)
	if err != nil {
		return scholarship.Scholarship{}, errors.Wrap(err, "inserting scholarship")
	}
	sch.ID = res.InsertedID.(primitive.ObjectID)
	return sch, nil
}

func (r *scholarshipRepository) GetByID(ctx context.Context, id primitive.ObjectID) (scholarship.Scholarship, error) {
	var sch scholarship.Scholarship
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&sch)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return scholarship.Scholarship{}, scholarship.ErrNotFound
		}
		return scholarship.Scholarship{}, errors.Wrap(err, "finding scholarship by id")
	}
	return sch, nil
}

func (r *scholarshipRepository) Filter(ctx context.Context, filter scholarship.QueryFilter, args core.ListArgs) ([]scholarship.Scholarship, int64, error) {
	query := bson.M{}
	if filter.Search != "" {
		re := searchRegex(filter.Search)
		query["$or"] = bson.A{
			bson.M{"title": re},
			bson.M{"provider": re},
		}
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Tag != "" {
		query["tags"] = filter.Tag
	}

	var schs []scholarship.Scholarship
	total, err := findPage(ctx, r.col, query, args, bson.D{{Key: "deadline", Value: -1}, {Key: "createdAt", Value: -1}}, &schs)
	return schs, total, err
}

func (r *scholarshipRepository) Update(ctx context.Context, sch scholarship.Scholarship) (scholarship.Scholarship, error) {
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": sch.ID}, sch)
	if err != nil {
		return scholarship.Scholarship{}, errors.Wrap(err, "updating scholarship")
	}
	if res.MatchedCount == 0 {
		return scholarship.Scholarship{}, scholarship.ErrNotFound
	}
	return sch, nil
}

func (r *scholarshipRepository) IncrementViews(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"views": 1}})
	if err != nil {
		return errors.Wrap(err, "incrementing views")
	}
	if res.MatchedCount == 0 {
		return scholarship.ErrNotFound
	}
	return nil
}

// TryIncrementApplications claims a quota slot atomically, matching
// only while the count is below quota.
func (r *scholarshipRepository) TryIncrementApplications(ctx context.Context, id primitive.ObjectID, quota int64) error {
	filter := bson.M{"_id": id}
	if quota > 0 {
		filter["currentApplications"] = bson.M{"$lt": quota}
	}
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"currentApplications": 1}})
	if err != nil {
		return errors.Wrap(err, "incrementing applications")
	}
	if res.MatchedCount == 0 {
		if n, cErr := r.col.CountDocuments(ctx, bson.M{"_id": id}); cErr == nil && n == 0 {
			return scholarship.ErrNotFound
		}
		return scholarship.ErrQuotaFull
	}
	return nil
}

// DecrementApplications floors the counter at zero.
func (r *scholarshipRepository) DecrementApplications(ctx context.Context, id primitive.ObjectID) error {
	filter := bson.M{"_id": id, "currentApplications": bson.M{"$gt": 0}}
	_, err := r.col.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"currentApplications": -1}})
	return errors.Wrap(err, "decrementing applications")
}

func (r *scholarshipRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "deleting scholarship")
	}
	if res.DeletedCount == 0 {
		return scholarship.ErrNotFound
	}
	return nil
}
