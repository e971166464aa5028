package mongodb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dienlabs/eduportal/core"
	"github.com/dienlabs/eduportal/core/blob"
	"github.com/dienlabs/eduportal/core/user"
)

type accountRepository struct {
	col *mongo.Collection
}

var _ user.Repository = (*accountRepository)(nil)

func NewAccountRepository(db *mongo.Database) user.Repository {
	return &accountRepository{col: db.Collection(colAccounts)}
}

func (r *accountRepository) Create(ctx context.Context, acct user.Account) (user.Account, error) {
	res, err := r.col.InsertOne(ctx, acct)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.Account{}, user.ErrAccountExists
		}
		return user.Account{}, errors.Wrap(err, "inserting account")
	}
	acct.ID = res.InsertedID.(primitive.ObjectID)
	return acct, nil
}

func (r *accountRepository) GetByID(ctx context.Context, id primitive.ObjectID) (user.Account, error) {
	var acct user.Account
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&acct)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return user.Account{}, user.ErrNotFound
		}
		return user.Account{}, errors.Wrap(err, "finding account by id")
	}
	return acct, nil
}

func (r *accountRepository) GetByAccount(ctx context.Context, account string) (user.Account, error) {
	opts := options.FindOne().SetCollation(&options.Collation{Locale: "en", Strength: 2})
	var acct user.Account
	err := r.col.FindOne(ctx, bson.M{"account": account}, opts).Decode(&acct)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return user.Account{}, user.ErrNotFound
		}
		return user.Account{}, errors.Wrap(err, "finding account by name")
	}
	return acct, nil
}

func (r *accountRepository) Filter(ctx context.Context, filter user.QueryFilter, args core.ListArgs) ([]user.Account, int64, error) {
	query := bson.M{}
	if filter.Search != "" {
		re := searchRegex(filter.Search)
		query["$or"] = bson.A{
			bson.M{"account": re},
			bson.M{"name": re},
			bson.M{"email": re},
		}
	}
	if filter.Role != "" {
		query["role"] = filter.Role
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	var accts []user.Account
	total, err := findPage(ctx, r.col, query, args, bson.D{{Key: "createdAt", Value: -1}}, &accts)
	return accts, total, err
}

func (r *accountRepository) Update(ctx context.Context, acct user.Account) (user.Account, error) {
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": acct.ID}, acct)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.Account{}, user.ErrAccountExists
		}
		return user.Account{}, errors.Wrap(err, "updating account")
	}
	if res.MatchedCount == 0 {
		return user.Account{}, user.ErrNotFound
	}
	return acct, nil
}

func (r *accountRepository) SetLastLogin(ctx context.Context, id primitive.ObjectID, t time.Time) error {
	return r.setField(ctx, id, "lastLogin", t)
}

func (r *accountRepository) SetPassword(ctx context.Context, id primitive.ObjectID, hash []byte) error {
	return r.setField(ctx, id, "password", hash)
}

func (r *accountRepository) SetAvatar(ctx context.Context, id primitive.ObjectID, ref blob.Reference) error {
	return r.setField(ctx, id, "avatar", ref)
}

func (r *accountRepository) SetRole(ctx context.Context, id primitive.ObjectID, role string) error {
	return r.setField(ctx, id, "role", role)
}

func (r *accountRepository) SetStatus(ctx context.Context, id primitive.ObjectID, status string) error {
	return r.setField(ctx, id, "status", status)
}

func (r *accountRepository) SetAffiliation(ctx context.Context, id primitive.ObjectID, field string, ref *primitive.ObjectID) error {
	if field != "organization" && field != "school" {
		return errors.Errorf("unknown affiliation field %q", field)
	}
	var update bson.M
	if ref == nil {
		update = bson.M{"$unset": bson.M{field: ""}}
	} else {
		update = bson.M{"$set": bson.M{field: *ref}}
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return errors.Wrap(err, "setting affiliation")
	}
	if res.MatchedCount == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *accountRepository) Delete(ctx context.Context, ids ...primitive.ObjectID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.col.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	return errors.Wrap(err, "deleting accounts")
}

func (r *accountRepository) setField(ctx context.Context, id primitive.ObjectID, field string, val interface{}) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{field: val, "updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return errors.Wrapf(err, "setting %s", field)
	}
	if res.MatchedCount == 0 {
		return user.ErrNotFound
	}
	return nil
}
