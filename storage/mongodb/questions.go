package mongodb

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/question"
)

type questionRepository struct {
	col *mongo.Collection
}

var _ question.Repository = (*questionRepository)(nil)

func NewQuestionRepository(db *mongo.Database) question.Repository {
	return &questionRepository{col: db.Collection(colQuestions)}
}

func (r *questionRepository) Create(ctx context.Context, q question.Question) (question.Question, error) {
	res, err := r.col.InsertOne(ctx, q)
	if err != nil {
		return question.Question{}, errors.Wrap(err, "inserting question")
	}
	q.ID = res.InsertedID.(primitive.ObjectID)
	return q, nil
}

func (r *questionRepository) GetByID(ctx context.Context, id primitive.ObjectID) (question.Question, error) {
	var q question.Question
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&q)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return question.Question{}, question.ErrNotFound
		}
		return question.Question{}, errors.Wrap(err, "finding question by id")
	}
	return q, nil
}

func (r *questionRepository) Filter(ctx context.Context, filter question.QueryFilter, args core.ListArgs) ([]question.Question, int64, error) {
	query := bson.M{}
	if filter.Search != "" {
		re := searchRegex(filter.Search)
		query["$or"] = bson.A{
			bson.M{"title": re},
			bson.M{"content": re},
		}
	}
	if filter.Type != "" {
		query["type"] = filter.Type
	}
	if filter.Subject != "" {
		query["subject"] = filter.Subject
	}
	if filter.Difficulty > 0 {
		query["difficulty"] = filter.Difficulty
	}

	var qs []question.Question
	total, err := findPage(ctx, r.col, query, args, bson.D{{Key: "createdAt", Value: -1}}, &qs)
	return qs, total, err
}

func (r *questionRepository) Update(ctx context.Context, q question.Question) (question.Question, error) {
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": q.ID}, q)
	if err != nil {
		return question.Question{}, errors.Wrap(err, "updating question")
	}
	if res.MatchedCount == 0 {
		return question.Question{}, question.ErrNotFound
	}
	return q, nil
}

func (r *questionRepository) IncrementCounters(ctx context.Context, id primitive.ObjectID, correct bool) error {
	inc := bson.M{"attemptCount": 1}
	if correct {
		inc["correctCount"] = 1
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": inc})
	if err != nil {
		return errors.Wrap(err, "incrementing counters")
	}
	if res.MatchedCount == 0 {
		return question.ErrNotFound
	}
	return nil
}

func (r *questionRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "deleting question")
	}
	if res.DeletedCount == 0 {
		return question.ErrNotFound
	}
	return nil
}
