package storage

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

type mongoBackend struct {
	client *mongo.Client
	db     *mongo.Database
	pingDB string
}

func openMongo(ctx context.Context, uri, dbName string) (backend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &mongoBackend{
		client: client,
		db:     client.Database(databaseOrDefault(dbName)),
		pingDB: pingDatabase(uri, dbName),
	}, nil
}

// Ping targets the named database, then the URI's default database, then
// admin. The log database is only a default for reads and writes.
func (m *mongoBackend) Ping(ctx context.Context) error {
	return m.client.Database(m.pingDB).RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
}

func pingDatabase(uri, dbName string) string {
	if name := strings.TrimSpace(dbName); name != "" {
		return name
	}
	if cs, err := connstring.Parse(uri); err == nil && cs.Database != "" {
		return cs.Database
	}
	return "admin"
}

func (m *mongoBackend) Insert(ctx context.Context, rec Record) error {
	if _, err := m.db.Collection(Collection).InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}

func (m *mongoBackend) Find(ctx context.Context, q Query) ([]Record, error) {
	cur, err := m.db.Collection(Collection).Find(ctx, mongoFilter(q.Term), mongoFindOptions(q.Limit))
	if err != nil {
		return nil, fmt.Errorf("find logs: %w", err)
	}
	defer cur.Close(ctx)

	out := make([]Record, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode logs: %w", err)
	}
	return out, nil
}

func (m *mongoBackend) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// mongoFilter matches term as a literal, case-insensitive substring of
// question or answer.
func mongoFilter(term string) bson.M {
	if term == "" {
		return bson.M{}
	}
	re := primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}
	return bson.M{"$or": bson.A{
		bson.M{"question": re},
		bson.M{"answer": re},
	}}
}

func mongoFindOptions(limit int) *options.FindOptions {
	return options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.D{{Key: "_id", Value: 0}})
}
