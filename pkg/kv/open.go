package kv

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// Backend names accepted by Open
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
	BackendRedis    = "redis"
)

// Options selects and configures a backend
type Options struct {
	Backend string

	SQLitePath string
	Postgres   PostgresConfig

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// AWS is only consulted for the dynamodb backend.
	AWS            aws.Config
	DynamoEndpoint string
}

// Open builds the Store named by opts.Backend
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		if opts.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite backend requires a database path")
		}
		return NewSQLiteStore(ctx, opts.SQLitePath)
	case BackendPostgres:
		return NewPostgresStore(ctx, opts.Postgres)
	case BackendDynamoDB, "":
		return NewDynamoStore(opts.AWS, opts.DynamoEndpoint), nil
	case BackendRedis:
		if opts.RedisAddr == "" {
			return nil, fmt.Errorf("redis backend requires an address")
		}
		return NewRedisStore(opts.RedisAddr, opts.RedisPassword, opts.RedisDB), nil
	default:
		return nil, fmt.Errorf("unknown kv backend %q", opts.Backend)
	}
}
