package mongodb

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/courseware"
)

type coursewareRepository struct {
	col *mongo.Collection
}

var _ courseware.Repository = (*coursewareRepository)(nil)

func NewCoursewareRepository(db *mongo.Database) courseware.Repository {
	return &coursewareRepository{col: db.Collection(colCourseware)}
}

func (r *coursewareRepository) Create(ctx context.Context, cw courseware.Courseware) (courseware.Courseware, error) {
	res, err := r.col.InsertOne(ctx, cw)
	if err != nil {
		return courseware.Courseware{}, errors.Wrap(err, "inserting courseware")
	}
	cw.ID = res.InsertedID.(primitive.ObjectID)
	return cw, nil
}

func (r *coursewareRepository) GetByID(ctx context.Context, id primitive.ObjectID) (courseware.Courseware, error) {
	var cw courseware.Courseware
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&cw)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return courseware.Courseware{}, courseware.ErrNotFound
		}
		return courseware.Courseware{}, errors.Wrap(err, "finding courseware by id")
	}
	return cw, nil
}

func (r *coursewareRepository) Filter(ctx context.Context, filter courseware.QueryFilter, args core.ListArgs) ([]courseware.Courseware, int64, error) {
	query := bson.M{}
	if filter.Search != "" {
		re := searchRegex(filter.Search)
		query["$or"] = bson.A{
			bson.M{"title": re},
			bson.M{"description": re},
		}
	}
	if filter.Type != "" {
		query["type"] = filter.Type
	}
	if filter.Subject != "" {
		query["subject"] = filter.Subject
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Tag != "" {
		query["tags"] = filter.Tag
	}

	var cws []courseware.Courseware
	total, err := findPage(ctx, r.col, query, args, bson.D{{Key: "createdAt", Value: -1}}, &cws)
	return cws, total, err
}

func (r *coursewareRepository) Update(ctx context.Context, cw courseware.Courseware) (courseware.Courseware, error) {
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": cw.ID}, cw)
	if err != nil {
		return courseware.Courseware{}, errors.Wrap(err, "updating courseware")
	}
	if res.MatchedCount == 0 {
		return courseware.Courseware{}, courseware.ErrNotFound
	}
	return cw, nil
}

func (r *coursewareRepository) IncrementViews(ctx context.Context, id primitive.ObjectID) error {
	return r.increment(ctx, id, "views", 1)
}

func (r *coursewareRepository) IncrementDownloads(ctx context.Context, id primitive.ObjectID) error {
	return r.increment(ctx, id, "downloads", 1)
}

// IncrementFavorites clamps decrements at zero: the filter refuses to
// match a zero-valued counter so the losing update is a no-op, never a
// negative count.
func (r *coursewareRepository) IncrementFavorites(ctx context.Context, id primitive.ObjectID, delta int64) error {
	if delta >= 0 {
		return r.increment(ctx, id, "favoriteCount", delta)
	}
	filter := bson.M{"_id": id, "favoriteCount": bson.M{"$gt": 0}}
	_, err := r.col.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"favoriteCount": delta}})
	return errors.Wrap(err, "decrementing favoriteCount")
}

// AddRating updates the running average in one round trip with a
// pipeline update so concurrent ratings never lose a vote.
func (r *coursewareRepository) AddRating(ctx context.Context, id primitive.ObjectID, score int) error {
	newCount := bson.M{"$add": bson.A{"$ratingCount", 1}}
	update := bson.A{
		bson.M{"$set": bson.M{
			"rating": bson.M{"$divide": bson.A{
				bson.M{"$add": bson.A{bson.M{"$multiply": bson.A{"$rating", "$ratingCount"}}, score}},
				newCount,
			}},
			"ratingCount": newCount,
		}},
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return errors.Wrap(err, "adding rating")
	}
	if res.MatchedCount == 0 {
		return courseware.ErrNotFound
	}
	return nil
}

func (r *coursewareRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "deleting courseware")
	}
	if res.DeletedCount == 0 {
		return courseware.ErrNotFound
	}
	return nil
}

func (r *coursewareRepository) increment(ctx context.Context, id primitive.ObjectID, field string, delta int64) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{field: delta}})
	if err != nil {
		return errors.Wrapf(err, "incrementing %s", field)
	}
	if res.MatchedCount == 0 {
		return courseware.ErrNotFound
	}
	return nil
}
