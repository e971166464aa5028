package mongodb

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/news"
)

type newsRepository struct {
	col *mongo.Collection
}

var _ news.Repository = (*newsRepository)(nil)

func NewNewsRepository(db *mongo.Database) news.Repository {
	return &newsRepository{col: db.Collection(colNews)}
}

func (r *newsRepository) Create(ctx context.Context, art news.Article) (news.Article, error) {
	res, err := r.col.InsertOne(ctx, art)
	if err != nil {
		return news.Article{}, errors.Wrap(err, "inserting article")
	}
	art.ID = res.InsertedID.(primitive.ObjectID)
	return art, nil
}

func (r *newsRepository) GetByID(ctx context.Context, id primitive.ObjectID) (news.Article, error) {
	var art news.Article
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&art)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return news.Article{}, news.ErrNotFound
		}
		return news.Article{}, errors.Wrap(err, "finding article by id")
	}
	return art, nil
}

func (r *newsRepository) Filter(ctx context.Context, filter news.QueryFilter, args core.ListArgs) ([]news.Article, int64, error) {
	query := bson.M{}
	if filter.Search != "" {
		re := searchRegex(filter.Search)
		query["$or"] = bson.A{
			bson.M{"title": re},
			bson.M{"summary": re},
		}
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Tag != "" {
		query["tags"] = filter.Tag
	}

	var arts []news.Article
	total, err := findPage(ctx, r.col, query, args, bson.D{{Key: "publishedAt", Value: -1}, {Key: "createdAt", Value: -1}}, &arts)
	return arts, total, err
}

func (r *newsRepository) Update(ctx context.Context, art news.Article) (news.Article, error) {
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": art.ID}, art)
	if err != nil {
		return news.Article{}, errors.Wrap(err, "updating article")
	}
	if res.MatchedCount == 0 {
		return news.Article{}, news.ErrNotFound
	}
	return art, nil
}

func (r *newsRepository) IncrementViews(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"views": 1}})
	if err != nil {
		return errors.Wrap(err, "incrementing views")
	}
	if res.MatchedCount == 0 {
		return news.ErrNotFound
	}
	return nil
}

func (r *newsRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "deleting article")
	}
	if res.DeletedCount == 0 {
		return news.ErrNotFound
	}
	return nil
}
