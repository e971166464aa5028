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

type applicationRepository struct {
	col *mongo.Collection
}

var _ scholarship.ApplicationRepository = (*applicationRepository)(nil)

func NewApplicationRepository(db *mongo.Database) scholarship.ApplicationRepository {
	return &applicationRepository{col: db.Collection(colApplications)}
}

// Create relies on the unique (scholarship, account) index: the losing
// writer of two concurrent applications gets ErrAlreadyApplied.
func (r *applicationRepository) Create(ctx context.Context, app scholarship.Application) (scholarship.Application, error) {
	res, err := r.col.InsertOne(ctx, app)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return scholarship.Application{}, scholarship.ErrAlreadyApplied
		}
		return scholarship.Application{}, errors.Wrap(err, "inserting application")
	}
	app.ID = res.InsertedID.(primitive.ObjectID)
	return app, nil
}

func (r *applicationRepository) GetByID(ctx context.Context, id primitive.ObjectID) (scholarship.Application, error) {
	var app scholarship.Application
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&app)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return scholarship.Application{}, scholarship.ErrAppNotFound
		}
		return scholarship.Application{}, errors.Wrap(err, "finding application by id")
	}
	return app, nil
}

func (r *applicationRepository) Filter(ctx context.Context, filter scholarship.AppQueryFilter, args core.ListArgs) ([]scholarship.Application, int64, error) {
	query := bson.M{}
	if filter.Scholarship != "" {
		id, err := primitive.ObjectIDFromHex(filter.Scholarship)
		if err != nil {
			return nil, 0, core.NewValidationError(err, core.FieldError{Field: "scholarship", Error: "must be a valid resource id"})
		}
		query["scholarship"] = id
	}
	if filter.Account != "" {
		id, err := primitive.ObjectIDFromHex(filter.Account)
		if err != nil {
			return nil, 0, core.NewValidationError(err, core.FieldError{Field: "account", Error: "must be a valid resource id"})
		}
		query["account"] = id
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	var apps []scholarship.Application
	total, err := findPage(ctx, r.col, query, args, bson.D{{Key: "createdAt", Value: -1}}, &apps)
	return apps, total, err
}

func (r *applicationRepository) Update(ctx context.Context, app scholarship.Application) (scholarship.Application, error) {
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": app.ID}, app)
	if err != nil {
		return scholarship.Application{}, errors.Wrap(err, "updating application")
	}
	if res.MatchedCount == 0 {
		return scholarship.Application{}, scholarship.ErrAppNotFound
	}
	return app, nil
}

func (r *applicationRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "deleting application")
	}
	if res.DeletedCount == 0 {
		return scholarship.ErrAppNotFound
	}
	return nil
}
