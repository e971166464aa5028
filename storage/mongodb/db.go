package mongodb

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/dienlabs/eduportal/core"
)

// Collection names
const (
	colAccounts     = "accounts"
	colAffiliations = "affiliations"
	colNews         = "news"
	colCourseware   = "courseware"
	colExams        = "exams"
	colQuestions    = "questions"
	colScholarships = "scholarships"
	colApplications = "applications"
	colActivities   = "activities"
)

// Open connects to the document store and pings it.
func Open(ctx context.Context, conf *core.Config) (*mongo.Client, *mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(conf.Database.URI))
	if err != nil {
		return nil, nil, errors.Wrap(err, "connecting to database")
	}
	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, nil, errors.Wrap(err, "pinging database")
	}
	return client, client.Database(conf.Database.Name), nil
}

// EnsureIndexes creates the unique indexes the write-time invariants
// rely on: losing writers of a concurrent duplicate surface a conflict
// instead of a second record.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	accountIdx := mongo.IndexModel{
		Keys: bson.D{{Key: "account", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			// case-insensitive account names
			SetCollation(&options.Collation{Locale: "en", Strength: 2}),
	}
	if _, err := db.Collection(colAccounts).Indexes().CreateOne(ctx, accountIdx); err != nil {
		return errors.Wrap(err, "accounts index")
	}

	affiliationIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "account", Value: 1}, {Key: "kind", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := db.Collection(colAffiliations).Indexes().CreateOne(ctx, affiliationIdx); err != nil {
		return errors.Wrap(err, "affiliations index")
	}

	activityIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "account", Value: 1}, {Key: "type", Value: 1}, {Key: "resource", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := db.Collection(colActivities).Indexes().CreateOne(ctx, activityIdx); err != nil {
		return errors.Wrap(err, "activities index")
	}

	applicationIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "scholarship", Value: 1}, {Key: "account", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := db.Collection(colApplications).Indexes().CreateOne(ctx, applicationIdx); err != nil {
		return errors.Wrap(err, "applications index")
	}
	return nil
}

// searchRegex builds a case-insensitive contains-match for keyword
// search filters.
func searchRegex(s string) primitive.Regex {
	return primitive.Regex{Pattern: regexQuoteMeta(s), Options: "i"}
}

func regexQuoteMeta(s string) string {
	special := `\.+*?()|[]{}^$`
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		for j := 0; j < len(special); j++ {
			if s[i] == special[j] {
				out = append(out, '\\')
				break
			}
		}
		out = append(out, s[i])
	}
	return string(out)
}

// findOptions translates pagination and ordering onto a Find call.
func findOptions(args core.ListArgs, defaultSort bson.D) *options.FindOptions {
	opts := options.Find().
		SetSkip(args.Skip()).
		SetLimit(args.LimitOrDefault())

	if len(args.Orderings) > 0 {
		sort := make(bson.D, 0, len(args.Orderings))
		for _, ord := range args.Orderings {
			dir := 1
			if !ord.Ascending {
				dir = -1
			}
			sort = append(sort, bson.E{Key: ord.Field, Value: dir})
		}
		return opts.SetSort(sort)
	}
	if defaultSort != nil {
		opts.SetSort(defaultSort)
	}
	return opts
}

// findPage runs the count + find pair every list endpoint needs.
func findPage(ctx context.Context, col *mongo.Collection, filter bson.M, args core.ListArgs, defaultSort bson.D, results interface{}) (int64, error) {
	total, err := col.CountDocuments(ctx, filter)
	if err != nil {
		return 0, errors.Wrap(err, "counting documents")
	}
	cur, err := col.Find(ctx, filter, findOptions(args, defaultSort))
	if err != nil {
		return 0, errors.Wrap(err, "querying documents")
	}
	if err = cur.All(ctx, results); err != nil {
		return 0, errors.Wrap(err, "decoding documents")
	}
	return total, nil
}
