package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
mongo:
  connection_string: mongodb://docdb.internal:27017
  database: annotations
redis:
  address: redis.internal:6379
  ttl: 120
storage:
  object_storage: true
  base_path: cell-1
  buckets:
    images: geti-images-prod
  s3:
    endpoint: http://minio.internal:9000
    region: eu-west-1
    access_key_id: key
    secret_access_key: secret
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "mongodb://docdb.internal:27017", cfg.Mongo.ConnectionString)
	assert.Equal(t, "annotations", cfg.Mongo.Database)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Address)
	assert.Equal(t, 120, cfg.Redis.TTLSeconds)
	assert.True(t, cfg.Storage.ObjectStorage)
	assert.Equal(t, "cell-1", cfg.Storage.BasePath)
	assert.Equal(t, "geti-images-prod", cfg.Storage.Buckets["images"])
	assert.Equal(t, "http://minio.internal:9000", cfg.Storage.S3.Endpoint)
	assert.Equal(t, "eu-west-1", cfg.Storage.S3.Region)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "{}"))
	require.NoError(t, err)

	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.ConnectionString)
	assert.Equal(t, "geti", cfg.Mongo.Database)
	assert.Equal(t, 3600, cfg.Redis.TTLSeconds)
	assert.Equal(t, "/data", cfg.Storage.Workdir)
	assert.Equal(t, "us-west-2", cfg.Storage.S3.Region)
	assert.NotNil(t, cfg.Storage.Buckets)
	assert.False(t, cfg.Storage.ObjectStorage)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("MONGODB_CONNECTION_STRING", "mongodb://override:27017")
	t.Setenv("MONGODB_DATABASE", "override_db")
	t.Setenv("S3_HOST", "http://override:9000")
	t.Setenv("S3_ACCESS_KEY", "override-key")
	t.Setenv("S3_SECRET_KEY", "override-secret")
	t.Setenv("OBJECT_STORAGE_BASE_PATH", "cell-override")

	cfg, err := LoadConfig(writeConfig(t, `
mongo:
  connection_string: mongodb://from-file:27017
`))
	require.NoError(t, err)

	assert.Equal(t, "mongodb://override:27017", cfg.Mongo.ConnectionString)
	assert.Equal(t, "override_db", cfg.Mongo.Database)
	assert.Equal(t, "http://override:9000", cfg.Storage.S3.Endpoint)
	assert.Equal(t, "override-key", cfg.Storage.S3.AccessKeyID)
	assert.Equal(t, "override-secret", cfg.Storage.S3.SecretAccessKey)
	assert.Equal(t, "cell-override", cfg.Storage.BasePath)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "mongo: [not a mapping"))
	assert.Error(t, err)
}
