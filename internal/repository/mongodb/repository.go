package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/igreja/tesouraria/internal/repository"
)

// MongoDBRepository implements repository.DocumentStore on MongoDB.
type MongoDBRepository struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

var _ repository.DocumentStore = (*MongoDBRepository)(nil)

// NewMongoDBRepository connects to uri and verifies the connection.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string, logger *zap.Logger) (*MongoDBRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoDBRepository{
		client: client,
		db:     client.Database(dbName),
		logger: logger,
	}, nil
}

// EnsureIndexes creates the owner+order indexes the ordered queries rely
// on. Without them the sync layer still works through its fallback path.
func (r *MongoDBRepository) EnsureIndexes(ctx context.Context, orders map[string]repository.Sort) error {
	for collection, order := range orders {
		direction := 1
		if order.Descending {
			direction = -1
		}
		model := mongo.IndexModel{
			Keys: bson.D{
				{Key: repository.FieldOwnerID, Value: 1},
				{Key: order.Field, Value: direction},
			},
		}
		name, err := r.db.Collection(collection).Indexes().CreateOne(ctx, model)
		if err != nil {
			return fmt.Errorf("create index on %s: %w", collection, err)
		}
		r.logger.Debug("index ensured", zap.String("collection", collection), zap.String("index", name))
	}
	return nil
}

// Find implements repository.DocumentStore.
func (r *MongoDBRepository) Find(ctx context.Context, collection string, filter repository.Filter, order *repository.Sort) ([]bson.Raw, error) {
	findOptions := options.Find()
	if order != nil {
		direction := 1
		if order.Descending {
			direction = -1
		}
		findOptions.SetSort(bson.D{{Key: order.Field, Value: direction}})
	}

	cursor, err := r.db.Collection(collection).Find(ctx, bson.M(filter), findOptions)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", collection, err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var docs []bson.Raw
	for cursor.Next(ctx) {
		doc := make(bson.Raw, len(cursor.Current))
		copy(doc, cursor.Current)
		docs = append(docs, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}

	return docs, nil
}

// Insert implements repository.DocumentStore. Ids are ObjectIDs assigned
// by the driver and returned in hex form.
func (r *MongoDBRepository) Insert(ctx context.Context, collection string, doc any) (string, error) {
	res, err := r.db.Collection(collection).InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("failed to insert into %s: %w", collection, err)
	}

	switch id := res.InsertedID.(type) {
	case primitive.ObjectID:
		return id.Hex(), nil
	case string:
		return id, nil
	default:
		return fmt.Sprint(id), nil
	}
}

// UpdateFields implements repository.DocumentStore.
func (r *MongoDBRepository) UpdateFields(ctx context.Context, collection, id string, scope repository.Filter, fields map[string]any) error {
	res, err := r.db.Collection(collection).UpdateOne(ctx, byID(id, scope), bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, repository.ErrNotFound)
	}
	return nil
}

// Delete implements repository.DocumentStore.
func (r *MongoDBRepository) Delete(ctx context.Context, collection, id string, scope repository.Filter) error {
	res, err := r.db.Collection(collection).DeleteOne(ctx, byID(id, scope))
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, repository.ErrNotFound)
	}
	return nil
}

// Get implements repository.DocumentStore.
func (r *MongoDBRepository) Get(ctx context.Context, collection, key string) (bson.Raw, error) {
	raw, err := r.db.Collection(collection).FindOne(ctx, byID(key, nil)).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s/%s: %w", collection, key, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s/%s: %w", collection, key, err)
	}
	return raw, nil
}

// Put implements repository.DocumentStore.
func (r *MongoDBRepository) Put(ctx context.Context, collection, key string, doc any) error {
	_, err := r.db.Collection(collection).ReplaceOne(ctx, bson.M{repository.FieldID: key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert %s/%s: %w", collection, key, err)
	}
	return nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// byID matches a document by its id, whether it was stored as an ObjectID
// or as a plain string, and by every condition in scope.
func byID(id string, scope repository.Filter) bson.M {
	filter := bson.M{}
	for key, value := range scope {
		filter[key] = value
	}

	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		filter[repository.FieldID] = bson.M{"$in": bson.A{oid, id}}
	} else {
		filter[repository.FieldID] = id
	}
	return filter
}
