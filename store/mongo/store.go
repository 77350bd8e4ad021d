// Package mongo provides a store.Store backed by MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/veloxio/creditmeter/account"
	"github.com/veloxio/creditmeter/id"
	"github.com/veloxio/creditmeter/store"
)

const colAccounts = "cm_accounts"

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store on a MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New creates a MongoDB store over an existing client.
func New(client *mongo.Client, database string) *Store {
	return &Store{client: client, db: client.Database(database)}
}

// Connect dials MongoDB and returns a ready store.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("creditmeter/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("creditmeter/mongo: ping: %w", err)
	}
	return New(client, database), nil
}

// Migrate creates the collection indexes.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.accounts().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "subscription_ref", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("creditmeter/mongo: migrate indexes: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) accounts() *mongo.Collection {
	return s.db.Collection(colAccounts)
}

// accountModel is the persisted shape of an account record.
type accountModel struct {
	ID              string    `bson:"_id"`
	UserID          string    `bson:"user_id"`
	SubscriptionRef string    `bson:"subscription_ref"`
	Attributes      string    `bson:"attributes"`
	Revision        int64     `bson:"revision"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

func toModel(a *account.Account) *accountModel {
	return &accountModel{
		ID:              a.ID.String(),
		UserID:          a.UserID,
		SubscriptionRef: a.SubscriptionRef,
		Attributes:      a.Attributes,
		Revision:        a.Revision,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func fromModel(m *accountModel) (*account.Account, error) {
	a := &account.Account{
		UserID:          m.UserID,
		SubscriptionRef: m.SubscriptionRef,
		Attributes:      m.Attributes,
		Revision:        m.Revision,
	}
	a.CreatedAt = m.CreatedAt
	a.UpdatedAt = m.UpdatedAt
	if m.ID != "" {
		parsed, err := id.ParseAccountID(m.ID)
		if err != nil {
			return nil, fmt.Errorf("creditmeter/mongo: account id: %w", err)
		}
		a.ID = parsed
	}
	return a, nil
}

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	if a.ID.IsNil() {
		a.ID = id.NewAccountID()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
		a.UpdatedAt = now
	}
	a.Revision = 1

	_, err := s.accounts().InsertOne(ctx, toModel(a))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("creditmeter/mongo: create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, userID string) (*account.Account, error) {
	var m accountModel
	err := s.accounts().FindOne(ctx, bson.M{"user_id": userID}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrAccountNotFound
		}
		return nil, fmt.Errorf("creditmeter/mongo: get account: %w", err)
	}
	return fromModel(&m)
}

func (s *Store) PutAccount(ctx context.Context, a *account.Account) error {
	res, err := s.accounts().UpdateOne(ctx,
		bson.M{"user_id": a.UserID, "revision": a.Revision},
		bson.M{
			"$set": bson.M{
				"subscription_ref": a.SubscriptionRef,
				"attributes":       a.Attributes,
				"updated_at":       time.Now().UTC(),
			},
			"$inc": bson.M{"revision": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("creditmeter/mongo: put account: %w", err)
	}
	if res.MatchedCount == 0 {
		// Distinguish a missing record from a stale revision.
		count, err := s.accounts().CountDocuments(ctx, bson.M{"user_id": a.UserID})
		if err != nil {
			return fmt.Errorf("creditmeter/mongo: put account: %w", err)
		}
		if count == 0 {
			return store.ErrAccountNotFound
		}
		return store.ErrRevisionConflict
	}
	a.Revision++
	return nil
}

func (s *Store) FindBySubscription(ctx context.Context, subscriptionRef string) (*account.Account, error) {
	if subscriptionRef == "" {
		return nil, store.ErrAccountNotFound
	}
	var m accountModel
	err := s.accounts().FindOne(ctx, bson.M{"subscription_ref": subscriptionRef}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrAccountNotFound
		}
		return nil, fmt.Errorf("creditmeter/mongo: find by subscription: %w", err)
	}
	return fromModel(&m)
}

func (s *Store) Scan(ctx context.Context, pred func(*account.Account) bool) ([]*account.Account, error) {
	cur, err := s.accounts().Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("creditmeter/mongo: scan: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	result := make([]*account.Account, 0)
	for cur.Next(ctx) {
		var m accountModel
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("creditmeter/mongo: scan decode: %w", err)
		}
		a, err := fromModel(&m)
		if err != nil {
			return nil, err
		}
		if pred == nil || pred(a) {
			result = append(result, a)
		}
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("creditmeter/mongo: scan: %w", err)
	}
	return result, nil
}

func (s *Store) DeleteAccount(ctx context.Context, userID string) error {
	_, err := s.accounts().DeleteOne(ctx, bson.M{"user_id": userID})
	if err != nil {
		return fmt.Errorf("creditmeter/mongo: delete account: %w", err)
	}
	return nil
}
