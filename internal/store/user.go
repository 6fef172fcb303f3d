package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/usercore/apiserver/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const usersCollection = "users"

// UserRepository handles persistence for users.
type UserRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{collection: db.Collection(usersCollection), now: time.Now}
}

func (r *UserRepository) GetByID(ctx context.Context, id primitive.ObjectID) (types.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return r.findOne(ctx, bson.M{"email": strings.ToLower(email)})
}

// GetByEmailOrUsername returns the first user matching either value. Empty
// values are ignored.
func (r *UserRepository) GetByEmailOrUsername(ctx context.Context, email, username string) (types.User, error) {
	var or bson.A
	if email != "" {
		or = append(or, bson.M{"email": strings.ToLower(email)})
	}
	if username != "" {
		or = append(or, bson.M{"username": username})
	}
	if len(or) == 0 {
		return types.User{}, ErrNotFound
	}
	return r.findOne(ctx, bson.M{"$or": or})
}

// UsernameTaken reports whether username belongs to a user other than exclude.
func (r *UserRepository) UsernameTaken(ctx context.Context, username string, exclude primitive.ObjectID) (bool, error) {
	filter := bson.M{"username": username}
	if !exclude.IsZero() {
		filter["_id"] = bson.M{"$ne": exclude}
	}
	n, err := r.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetByIDs returns the users among ids that exist, in no particular order.
func (r *UserRepository) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]types.User, error) {
	if len(ids) == 0 {
		return []types.User{}, nil
	}
	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	users := []types.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := r.now().UTC()
	user.ID = primitive.NilObjectID
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Team == nil {
		user.Team = []primitive.ObjectID{}
	}

	res, err := r.collection.InsertOne(ctx, user)
	if err != nil {
		return types.User{}, translateWriteError(err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		user.ID = oid
	}
	return user, nil
}

// Update applies patch to the user with id in a single atomic $set and
// returns the updated document.
func (r *UserRepository) Update(ctx context.Context, id primitive.ObjectID, patch types.UserPatch) (types.User, error) {
	set := bson.M{"updatedAt": r.now().UTC()}
	if patch.Username != nil {
		set["username"] = *patch.Username
	}
	if patch.Email != nil {
		set["email"] = strings.ToLower(*patch.Email)
	}
	if patch.PasswordHash != nil {
		set["password"] = *patch.PasswordHash
	}
	if patch.FirstName != nil {
		set["firstName"] = *patch.FirstName
	}
	if patch.LastName != nil {
		set["lastName"] = *patch.LastName
	}
	if patch.Role != nil {
		set["role"] = *patch.Role
	}
	if patch.Team != nil {
		set["team"] = patch.Team
	}
	if patch.IsActive != nil {
		set["isActive"] = *patch.IsActive
	}
	if patch.LastLogin != nil {
		set["lastLogin"] = patch.LastLogin.UTC()
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var user types.User
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, translateWriteError(err)
	}
	return user, nil
}

// List returns one page of users matching filter, newest first, and the total
// number of matches.
func (r *UserRepository) List(ctx context.Context, filter types.UserFilter) ([]types.User, int64, error) {
	query := listQuery(filter)

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(filter.Offset())
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	users := []types.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// Stats counts users per role and active users.
func (r *UserRepository) Stats(ctx context.Context) (types.UserStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$role"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "active", Value: bson.D{{Key: "$sum", Value: bson.D{
				{Key: "$cond", Value: bson.A{"$isActive", 1, 0}},
			}}}},
		}}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return types.UserStats{}, err
	}

	var rows []struct {
		Role   types.Role `bson:"_id"`
		Count  int64      `bson:"count"`
		Active int64      `bson:"active"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return types.UserStats{}, err
	}

	var stats types.UserStats
	for _, row := range rows {
		stats.TotalUsers += row.Count
		stats.TotalActiveUsers += row.Active
		switch row.Role {
		case types.RoleAdmin:
			stats.TotalAdmins = row.Count
		case types.RoleManager:
			stats.TotalManagers = row.Count
		case types.RoleUser:
			stats.TotalRegularUsers = row.Count
		}
	}
	return stats, nil
}

// Ping checks that the store is reachable.
func (r *UserRepository) Ping(ctx context.Context) error {
	return r.collection.Database().Client().Ping(ctx, nil)
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (types.User, error) {
	var user types.User
	err := r.collection.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func listQuery(filter types.UserFilter) bson.M {
	query := bson.M{}
	if filter.Role != nil {
		query["role"] = *filter.Role
	}
	if filter.IsActive != nil {
		query["isActive"] = *filter.IsActive
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"username": pattern},
			bson.M{"email": pattern},
			bson.M{"firstName": pattern},
			bson.M{"lastName": pattern},
		}
	}
	return query
}

var dupKeyField = regexp.MustCompile(`dup key: \{ ?"?([A-Za-z_]+)"?:`)

// translateWriteError turns a unique index violation into a DuplicateError
// naming the offending field.
func translateWriteError(err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return err
	}
	msg := err.Error()
	if m := dupKeyField.FindStringSubmatch(msg); len(m) == 2 {
		return &DuplicateError{Field: m[1]}
	}
	switch {
	case strings.Contains(msg, "email"):
		return &DuplicateError{Field: "email"}
	case strings.Contains(msg, "username"):
		return &DuplicateError{Field: "username"}
	}
	return &DuplicateError{Field: "unknown"}
}
