package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/haivivi/bindkit/pkg/abi"
	"github.com/haivivi/bindkit/pkg/bind"
	"github.com/haivivi/bindkit/pkg/bridge"
	"github.com/haivivi/bindkit/pkg/buildcache"
	"github.com/haivivi/bindkit/pkg/convert"
	"github.com/haivivi/bindkit/pkg/foreign"
	"github.com/haivivi/bindkit/pkg/gen"
	"github.com/haivivi/bindkit/pkg/kv"
	"github.com/haivivi/bindkit/pkg/storage"
)

// CacheOff disables the build cache when used as cache_dir.
const CacheOff = "off"

// Bridge returns an exception bridge configured by the context.
func (ctx *Context) Bridge(logger *slog.Logger) *bridge.Bridge {
	return bridge.New(bridge.Options{ThirdParty: ctx.ThirdPartyErrors, Logger: logger})
}

// Generator returns a binding generator configured by the context. The
// interpreter is only created when rt is non-nil; a generator without one
// can Plan but not call.
func (ctx *Context) Generator(rt abi.Runtime, logger *slog.Logger) *bind.Generator {
	g := &bind.Generator{
		Bridge:  ctx.Bridge(logger),
		Convert: convert.Options{BulkBuffer: ctx.BulkBuffer},
		Logger:  logger,
	}
	if rt != nil {
		g.Interp = foreign.New(rt, foreign.Options{
			AutoInitialize:    ctx.AutoInitialize,
			DropQueueCapacity: ctx.DropQueueCapacity,
			Logger:            logger,
		})
	}
	return g
}

// GenOptions returns emission options for host types in hostImport. The
// generated package defaults to the context's package setting.
func (ctx *Context) GenOptions(hostImport, pkg string, logger *slog.Logger) gen.Options {
	if pkg == "" {
		pkg = ctx.Package
	}
	return gen.Options{Package: pkg, HostImport: hostImport, Bridge: ctx.Bridge(logger)}
}

// OpenCache opens the context's build cache. It returns nil when the cache
// is disabled. defaultDir is used when the context sets no directory.
func (ctx *Context) OpenCache(defaultDir string, logger *slog.Logger) (*buildcache.Cache, error) {
	dir := ctx.CacheDir
	if dir == "" {
		dir = defaultDir
	}
	if dir == CacheOff {
		return nil, nil
	}
	if ctx.S3 == nil {
		return buildcache.OpenDir(dir, logger)
	}

	files, err := ctx.S3.store()
	if err != nil {
		return nil, err
	}
	index, err := kv.NewBadger(kv.BadgerOptions{Dir: filepath.Join(dir, "index"), Logger: logger})
	if err != nil {
		return nil, err
	}
	return buildcache.New(buildcache.Options{Index: index, Files: files, Logger: logger})
}

func (c *S3Config) store() (*storage.S3Store, error) {
	if c.Bucket == "" {
		return nil, errors.New("cli: s3 cache needs a bucket")
	}
	id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return nil, errors.New("cli: s3 cache needs AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY")
	}
	region := c.Region
	if region == "" {
		region = "us-east-1"
	}
	creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     id,
			SecretAccessKey: secret,
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			Source:          "environment",
		}, nil
	})
	opts := s3.Options{
		Region:      region,
		Credentials: aws.NewCredentialsCache(creds),
	}
	if c.Endpoint != "" {
		opts.BaseEndpoint = aws.String(c.Endpoint)
		opts.UsePathStyle = true
	}
	client := s3.New(opts)
	return storage.NewS3(client, c.Bucket, c.Prefix), nil
}
