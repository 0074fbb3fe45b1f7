package repo

import (
	"context"
	"errors"
	"iter"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/entity"
)

const collectionAccounts = "accounts"

// MongoStore keeps one document per account in the `accounts` collection,
// keyed by subject id.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(collectionAccounts)}
}

// EnsureIndexes creates the role/visible index used by directory queries.
func (r *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "role", Value: 1}, {Key: "visible", Value: 1}},
	})
	return err
}

func (r *MongoStore) Get(ctx context.Context, id string) (*entity.Account, error) {
	var a entity.Account
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, unavailable("get account", err)
	}
	if a.UnlockedTargets == nil {
		a.UnlockedTargets = []string{}
	}
	return &a, nil
}

func (r *MongoStore) Create(ctx context.Context, a *entity.Account) error {
	doc := *a
	// $push on a null field fails, so the set is always stored as an array.
	doc.UnlockedTargets = nonNil(a.UnlockedTargets)
	if _, err := r.coll.InsertOne(ctx, &doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return unavailable("create account", err)
	}
	return nil
}

func queryFilter(f Filter) bson.M {
	filter := bson.M{}
	if f.Role != nil {
		filter["role"] = string(*f.Role)
	}
	if f.Visible != nil {
		filter["visible"] = *f.Visible
	}
	return filter
}

func (r *MongoStore) Query(ctx context.Context, f Filter) iter.Seq2[*entity.Account, error] {
	return func(yield func(*entity.Account, error) bool) {
		cursor, err := r.coll.Find(ctx, queryFilter(f), options.Find().SetBatchSize(200))
		if err != nil {
			yield(nil, unavailable("query accounts", err))
			return
		}
		defer cursor.Close(ctx)
		for cursor.Next(ctx) {
			var a entity.Account
			if err := cursor.Decode(&a); err != nil {
				if !yield(nil, unavailable("decode account", err)) {
					return
				}
				continue
			}
			if a.UnlockedTargets == nil {
				a.UnlockedTargets = []string{}
			}
			if !yield(&a, nil) {
				return
			}
		}
		if err := cursor.Err(); err != nil {
			yield(nil, unavailable("query accounts", err))
		}
	}
}

// mergeSet translates a patch into a $set document on the nested profile.
func mergeSet(patch entity.AccountPatch, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	if patch.Role != nil {
		set["role"] = string(*patch.Role)
	}
	if patch.Visible != nil {
		set["visible"] = *patch.Visible
	}
	if patch.Email != nil {
		set["email"] = *patch.Email
	}
	if patch.Name != nil {
		set["profile.name"] = *patch.Name
	}
	if patch.PhotoURL != nil {
		set["profile.photoURL"] = *patch.PhotoURL
	}
	if patch.Bio != nil {
		set["profile.bio"] = *patch.Bio
	}
	if patch.Nationality != nil {
		set["profile.nationality"] = *patch.Nationality
	}
	if patch.Starters != nil {
		set["profile.starters"] = nonNil(*patch.Starters)
	}
	if patch.Interests != nil {
		set["profile.interests"] = nonNil(*patch.Interests)
	}
	if patch.Socials != nil {
		set["profile.socials"] = *patch.Socials
	}
	return set
}

func (r *MongoStore) SetMerge(ctx context.Context, id string, patch entity.AccountPatch) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": mergeSet(patch, time.Now().UTC())})
	if err != nil {
		return unavailable("merge account", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// appendFilter matches the account only while target is absent from its set,
// so a single-document update serves as the exclusivity gate.
func appendFilter(id, target string) bson.M {
	return bson.M{"_id": id, "unlockedTargets": bson.M{"$ne": target}}
}

func (r *MongoStore) ConditionalAppend(ctx context.Context, id, target string) (AppendResult, error) {
	now := time.Now().UTC()
	res, err := r.coll.UpdateOne(ctx, appendFilter(id, target), bson.M{
		"$push": bson.M{"unlockedTargets": target},
		"$set":  bson.M{"lastUnlockedAt": now, "updatedAt": now},
	})
	if err != nil {
		return 0, unavailable("append unlocked target", err)
	}
	if res.MatchedCount == 1 {
		return Appended, nil
	}
	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return 0, unavailable("append unlocked target", err)
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	return AlreadyPresent, nil
}

func (r *MongoStore) IncrementUnlockCount(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{"unlockCount": 1},
		"$set": bson.M{"lastUnlockedAt": now, "updatedAt": now},
	})
	if err != nil {
		return unavailable("increment unlock count", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoStore) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return unavailable("delete account", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
