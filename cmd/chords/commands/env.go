package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/RyanBlaney/sonido-chords/chords"
	"github.com/RyanBlaney/sonido-chords/config"
	"github.com/RyanBlaney/sonido-chords/kv"
	"github.com/RyanBlaney/sonido-chords/logging"
	"github.com/RyanBlaney/sonido-chords/model"
	"github.com/RyanBlaney/sonido-chords/storage"
	"github.com/RyanBlaney/sonido-chords/transcode"
)

// templatesModel selects the built-in template model instead of an artifact.
const templatesModel = "templates"

// env holds the components shared by the subcommands.
type env struct {
	cfg      *config.Config
	decoder  *transcode.Decoder
	store    *model.Store
	kv       kv.Store
	registry *model.Registry
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}
	fs, err := openFileStore(ctx, cfg.Models)
	if err != nil {
		return nil, fmt.Errorf("open model store: %w", err)
	}
	db, err := kv.NewBadger(kv.BadgerOptions{
		Dir:    cfg.Models.RegistryDir,
		Logger: logging.WithFields(logging.Fields{"component": "registry"}),
	})
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	decoder := transcode.NewDecoder(cfg.Audio)
	if err := decoder.ValidateConfig(); err != nil {
		// native WAV decoding still works
		logging.Warn("Audio decoder is limited", logging.Fields{"reason": err.Error()})
	}
	store := model.NewStore(fs)
	return &env{
		cfg:      cfg,
		decoder:  decoder,
		store:    store,
		kv:       db,
		registry: model.NewRegistry(db, store),
	}, nil
}

func (e *env) Close() error {
	return e.kv.Close()
}

func openFileStore(ctx context.Context, cfg config.ModelsConfig) (storage.FileStore, error) {
	if cfg.S3 == nil {
		return storage.NewLocal(cfg.Dir)
	}
	client, err := newS3Client(ctx, cfg.S3)
	if err != nil {
		return nil, err
	}
	return storage.NewS3(client, cfg.S3.Bucket, cfg.S3.Prefix), nil
}

// defaultS3Region applies when neither the config nor the AWS environment
// names a region.
const defaultS3Region = "us-east-1"

// newS3Client resolves credentials and region through the AWS default chain
// (environment, shared config profiles, SSO, IAM roles). Fields set in cfg
// override what the chain finds.
func newS3Client(ctx context.Context, cfg *config.S3Config) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = defaultS3Region
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// classifier loads the named artifact, the built-in templates, or the
// active model when name is empty.
func (e *env) classifier(ctx context.Context, name string) (*chords.Classifier, error) {
	c := chords.NewClassifier()
	switch name {
	case "":
		if _, err := e.registry.LoadActive(ctx, c); err != nil {
			if errors.Is(err, model.ErrNoActiveModel) {
				return nil, fmt.Errorf("%w: no active model, run 'chords models activate' or pass --model %s",
					chords.ErrModelUnavailable, templatesModel)
			}
			return nil, fmt.Errorf("%w: %w", chords.ErrModelUnavailable, err)
		}
	case templatesModel:
		c.Load(templatesModel, model.NewTemplates(0))
	default:
		a, err := e.store.Load(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", chords.ErrModelUnavailable, err)
		}
		c.Load(a.Name, a.Predictor)
	}
	logging.Debug("Model loaded", logging.Fields{"model": c.ModelName()})
	return c, nil
}
