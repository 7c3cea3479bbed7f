// Package s3 implements the "s3" backend on top of any S3-compatible object
// store. A backup run is stored under <root>/<prefix>/ in one bucket.
package s3

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/vk/hostmaint/internal/backend"
	"github.com/vk/hostmaint/internal/config"
	"github.com/vk/hostmaint/internal/errs"
)

// Name is the backend type used in task configuration.
const Name = "s3"

const defaultEndpoint = "s3.amazonaws.com"

// Module implements the backend.Module interface for this package.
type Module struct{}

// Register registers the s3 backend factory.
func (m *Module) Register(r *backend.Registry) {
	r.Register(Name, New)
}

// Options are the decoded backend parameters.
type Options struct {
	Bucket    string
	Root      string
	Endpoint  string
	Region    string
	Profile   string
	AccessKey string
	SecretKey string
	Secure    bool
	// SinkClass is the storage class objects are uploaded with; RotClass,
	// when different, is applied to every object once the run succeeded.
	SinkClass string
	RotClass  string
	Quota     backend.Quota
}

// ParseOptions decodes and validates task parameters.
func ParseOptions(params config.Params) (Options, error) {
	pr := backend.NewParamReader(Name, params)
	o := Options{
		Bucket:    pr.Required("bucket"),
		Root:      strings.Trim(pr.Required("root"), "/"),
		Endpoint:  pr.String("endpoint", defaultEndpoint),
		Region:    pr.String("region", ""),
		Profile:   pr.String("profile", ""),
		AccessKey: pr.String("access-key", ""),
		SecretKey: pr.String("secret-key", ""),
		Secure:    pr.Bool("secure", true),
		SinkClass: pr.String("sink-storage-class", ""),
		RotClass:  pr.String("rot-storage-class", ""),
		Quota:     pr.Quota(),
	}
	if err := pr.Err(); err != nil {
		return Options{}, err
	}
	if (o.AccessKey == "") != (o.SecretKey == "") {
		return Options{}, errs.Configf("s3 backend-param: access-key and secret-key must be set together")
	}
	if o.AccessKey != "" && o.Profile != "" {
		return Options{}, errs.Configf("s3 backend-param: profile conflicts with access-key")
	}
	return o, nil
}

// credentials picks static keys, then the named shared-file profile, then
// the environment followed by the default profile.
func (o Options) credentials() *credentials.Credentials {
	switch {
	case o.AccessKey != "":
		return credentials.NewStaticV4(o.AccessKey, o.SecretKey, "")
	case o.Profile != "":
		return credentials.NewFileAWSCredentials("", o.Profile)
	}
	return credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvAWS{},
		&credentials.FileAWSCredentials{},
	})
}

// New builds the backend. No request is made until a run begins.
func New(ctx context.Context, params config.Params) (backend.Backend, error) {
	o, err := ParseOptions(params)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(o.Endpoint, &minio.Options{
		Creds:  o.credentials(),
		Secure: o.Secure,
		Region: o.Region,
	})
	if err != nil {
		return nil, errs.Configf("s3 backend-param: %v", err)
	}
	return newBackend(client, o), nil
}

func newBackend(api objectAPI, o Options) *Backend {
	return &Backend{api: api, opts: o}
}

func (b *Backend) String() string {
	return fmt.Sprintf("s3 bucket=%s root=%s endpoint=%s %s sink-class=%q rot-class=%q",
		b.opts.Bucket, b.opts.Root, b.opts.Endpoint, b.opts.Quota, b.opts.SinkClass, b.opts.RotClass)
}
