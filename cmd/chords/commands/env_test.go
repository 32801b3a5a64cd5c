package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-chords/config"
)

// isolateAWS points the default chain at empty shared files and clears the
// environment it reads.
func isolateAWS(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	for _, key := range []string{
		"AWS_PROFILE", "AWS_REGION", "AWS_DEFAULT_REGION",
		"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "AWS_SESSION_TOKEN",
		"AWS_ENDPOINT_URL", "AWS_ENDPOINT_URL_S3",
	} {
		t.Setenv(key, "")
	}
}

func TestNewS3ClientConfigOverrides(t *testing.T) {
	isolateAWS(t)
	t.Setenv("AWS_REGION", "ap-south-1")
	ctx := context.Background()

	client, err := newS3Client(ctx, &config.S3Config{
		Bucket:       "models",
		Region:       "eu-west-2",
		Endpoint:     "http://localhost:9000",
		UsePathStyle: true,
		AccessKey:    "config-key",
		SecretKey:    "config-secret",
	})
	require.NoError(t, err)

	opts := client.Options()
	assert.Equal(t, "eu-west-2", opts.Region)
	assert.Equal(t, "http://localhost:9000", aws.ToString(opts.BaseEndpoint))
	assert.True(t, opts.UsePathStyle)
	creds, err := opts.Credentials.Retrieve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "config-key", creds.AccessKeyID)
	assert.Equal(t, "config-secret", creds.SecretAccessKey)
}

func TestNewS3ClientUsesDefaultChain(t *testing.T) {
	isolateAWS(t)
	t.Setenv("AWS_REGION", "ap-south-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "env-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "env-secret")
	ctx := context.Background()

	client, err := newS3Client(ctx, &config.S3Config{Bucket: "models"})
	require.NoError(t, err)

	opts := client.Options()
	assert.Equal(t, "ap-south-1", opts.Region)
	assert.Nil(t, opts.BaseEndpoint)
	assert.False(t, opts.UsePathStyle)
	creds, err := opts.Credentials.Retrieve(ctx)
	require.NoError(t, err)
	assert.Equal(t, "env-key", creds.AccessKeyID)
}

func TestNewS3ClientProfileRegion(t *testing.T) {
	isolateAWS(t)
	shared := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.WriteFile(shared, []byte("[profile ci]\nregion = sa-east-1\n"), 0o600))
	t.Setenv("AWS_CONFIG_FILE", shared)
	t.Setenv("AWS_PROFILE", "ci")

	client, err := newS3Client(context.Background(), &config.S3Config{Bucket: "models"})
	require.NoError(t, err)
	assert.Equal(t, "sa-east-1", client.Options().Region)
}

func TestNewS3ClientDefaultRegion(t *testing.T) {
	isolateAWS(t)
	client, err := newS3Client(context.Background(), &config.S3Config{Bucket: "models"})
	require.NoError(t, err)
	assert.Equal(t, defaultS3Region, client.Options().Region)
}
