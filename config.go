package ent

import (
	"context"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/pkg/errors"
)

type S3Config struct {
	Bucket    string `hcl:"bucket"`
	Region    string `hcl:"region"`
	AccessKey string `hcl:"access_key,optional"`
	SecretKey string `hcl:"secret_key,optional"`
	Directory string `hcl:"directory,optional"`
	URL       string `hcl:"host,optional"`
}

type Config struct {
	HistoryPath string `hcl:"history_path,optional"`
	Expand      bool   `hcl:"expand,optional"`
	MaxExpanded int64  `hcl:"max_expanded_size,optional"`
	CacheSize   int    `hcl:"cache_size,optional"`
	MetricsAddr string `hcl:"metrics_addr,optional"`

	Storage *struct {
		FilePath string    `hcl:"file_path,optional"`
		S3       *S3Config `hcl:"s3,block"`
	} `hcl:"storage,block"`

	NATS *struct {
		URL string `hcl:"url"`
		ID  string `hcl:"id,optional"`
	} `hcl:"nats,block"`
}

func LoadConfig(path string) (*Config, error) {
	var (
		ctx hcl.EvalContext
		cfg Config
	)

	err := hclsimple.DecodeFile(path, &ctx, &cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Source builds the Source described by the storage block. Without one,
// names are read from the local filesystem as given.
func (c *Config) Source(ctx context.Context, log hclog.Logger) (Source, error) {
	if c.Storage == nil {
		return &LocalFileAccess{}, nil
	}

	st := c.Storage

	if st.FilePath != "" {
		if st.S3 != nil {
			return nil, errors.New("storage is either file_path, or s3, not both")
		}

		dir, err := filepath.Abs(st.FilePath)
		if err != nil {
			return nil, errors.Wrapf(err, "resolving storage path")
		}

		return &LocalFileAccess{Dir: dir}, nil
	}

	if st.S3 == nil {
		return &LocalFileAccess{}, nil
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, func(lo *config.LoadOptions) error {
		lo.Region = st.S3.Region

		if st.S3.AccessKey != "" {
			lo.Credentials = credentials.NewStaticCredentialsProvider(
				st.S3.AccessKey, st.S3.SecretKey, "",
			)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "initializing S3 configuration")
	}

	return NewS3Access(log, st.S3.URL, st.S3.Bucket, st.S3.Directory, awsCfg)
}
