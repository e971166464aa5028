package mongodb

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/exam"
)

type examRepository struct {
	col *mongo.Collection
}

var _ exam.Repository = (*examRepository)(nil)

func NewExamRepository(db *mongo.Database) exam.Repository {
	return &examRepository{col: db.Collection(colExams)}
}

func (r *examRepository) Create(ctx context.Context, ex exam.Exam) (exam.Exam, error) {
	res, err := r.col.InsertOne(ctx, ex)
	if err != nil {
		return exam.Exam{}, errors.Wrap(err, "inserting exam")
	}
	ex.ID = res.InsertedID.(primitive.ObjectID)
	return ex, nil
}

func (r *examRepository) GetByID(ctx context.Context, id primitive.ObjectID) (exam.Exam, error) {
	var ex exam.Exam
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&ex)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return exam.Exam{}, exam.ErrNotFound
		}
		return exam.Exam{}, errors.Wrap(err, "finding exam by id")
	}
	return ex, nil
}

func (r *examRepository) Filter(ctx context.Context, filter exam.QueryFilter, args core.ListArgs) ([]exam.Exam, int64, error) {
	query := bson.M{}
	if filter.Search != "" {
		query["title"] = searchRegex(filter.Search)
	}
	if filter.Subject != "" {
		query["subject"] = filter.Subject
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	var exams []exam.Exam
	total, err := findPage(ctx, r.col, query, args, bson.D{{Key: "startAt", Value: -1}, {Key: "createdAt", Value: -1}}, &exams)
	return exams, total, err
}

func (r *examRepository) Update(ctx context.Context, ex exam.Exam) (exam.Exam, error) {
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": ex.ID}, ex)
	if err != nil {
		return exam.Exam{}, errors.Wrap(err, "updating exam")
	}
	if res.MatchedCount == 0 {
		return exam.Exam{}, exam.ErrNotFound
	}
	return ex, nil
}

// TryIncrementParticipants claims a seat atomically: the filter only
// matches while the exam is below capacity, so concurrent registrations
// cannot oversubscribe it.
func (r *examRepository) TryIncrementParticipants(ctx context.Context, id primitive.ObjectID, max int64) error {
	filter := bson.M{"_id": id}
	if max > 0 {
		filter["currentParticipants"] = bson.M{"$lt": max}
	}
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"currentParticipants": 1}})
	if err != nil {
		return errors.Wrap(err, "incrementing participants")
	}
	if res.MatchedCount == 0 {
		// distinguish a full exam from a missing one
		if n, cErr := r.col.CountDocuments(ctx, bson.M{"_id": id}); cErr == nil && n == 0 {
			return exam.ErrNotFound
		}
		return exam.ErrFull
	}
	return nil
}

func (r *examRepository) DecrementParticipants(ctx context.Context, id primitive.ObjectID) error {
	filter := bson.M{"_id": id, "currentParticipants": bson.M{"$gt": 0}}
	_, err := r.col.UpdateOne(ctx, filter, bson.M{"$inc": bson.M{"currentParticipants": -1}})
	return errors.Wrap(err, "decrementing participants")
}

func (r *examRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "deleting exam")
	}
	if res.DeletedCount == 0 {
		return exam.ErrNotFound
	}
	return nil
}
