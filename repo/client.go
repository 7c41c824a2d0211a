package repo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/open-edge-platform/geti-persistence/config"
	"github.com/open-edge-platform/geti-persistence/internal/log"
)

// Connect establishes and verifies a document-store client. The client
// is safe to share across all repository instances and goroutines; it is
// meant to be created once at startup and injected into repository
// constructors via its database handle.
func Connect(ctx context.Context, uri string, opts ...*options.ClientOptions) (*mongo.Client, error) {
	clientOpts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, opts...)
	client, err := mongo.Connect(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to document store: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping document store: %w", err)
	}
	logger := log.For("repo")
	logger.Debug().Msg("connected to document store")
	return client, nil
}

// ConnectFromConfig connects using the Mongo configuration section. When
// a password secret ARN is configured, the password is resolved from
// Secrets Manager and merged into the connection credentials.
func ConnectFromConfig(ctx context.Context, cfg config.Mongo) (*mongo.Client, error) {
	opts, err := clientOptions(cfg, config.PasswordFromSecretsManager)
	if err != nil {
		return nil, err
	}
	return Connect(ctx, cfg.ConnectionString, opts...)
}

// clientOptions builds the credential override for a secret-managed
// password, keeping the username and auth settings of the connection
// string.
func clientOptions(cfg config.Mongo, resolvePassword func(string) (string, error)) ([]*options.ClientOptions, error) {
	if cfg.PasswordSecretArn == "" {
		return nil, nil
	}
	password, err := resolvePassword(cfg.PasswordSecretArn)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve document store password: %w", err)
	}
	cred := options.Credential{}
	if base := options.Client().ApplyURI(cfg.ConnectionString); base.Auth != nil {
		cred = *base.Auth
	}
	cred.Password = password
	cred.PasswordSet = true
	return []*options.ClientOptions{options.Client().SetAuth(cred)}, nil
}
