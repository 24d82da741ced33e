package mongo

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/viderstv/displaysync/instance"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var ErrNoDocuments = mongo.ErrNoDocuments

func New(ctx context.Context, opt SetupOptions) (instance.Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opt.URI).SetDirect(opt.Direct))
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, err
	}

	database := client.Database(opt.Database)

	logrus.Info("mongo, ok")

	return &MongoInst{
		client: client,
		db:     database,
	}, nil
}

type MongoInst struct {
	client *mongo.Client
	db     *mongo.Database
}

func (i *MongoInst) Collection(name instance.CollectionName) *mongo.Collection {
	return i.db.Collection(string(name))
}

func (i *MongoInst) Ping(ctx context.Context) error {
	return i.client.Ping(ctx, readpref.Primary())
}

func (i *MongoInst) Disconnect(ctx context.Context) error {
	return i.client.Disconnect(ctx)
}

func (i *MongoInst) RawClient() *mongo.Client {
	return i.client
}

func (i *MongoInst) RawDatabase() *mongo.Database {
	return i.db
}

type SetupOptions struct {
	URI      string
	Database string
	Direct   bool
}
