package config

import (
	"context"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/model"
)

const gcsScheme = "gs://"

// ParseGCSPath splits "gs://bucket/object" into bucket and object. ok is
// false for anything that is not a GCS URL.
func ParseGCSPath(path string) (bucket, object string, ok bool, err error) {
	if !strings.HasPrefix(path, gcsScheme) {
		return "", "", false, nil
	}
	rest := strings.TrimPrefix(path, gcsScheme)
	bucket, object, found := strings.Cut(rest, "/")
	if !found || bucket == "" || object == "" {
		return "", "", true, goerr.Wrap(model.ErrInvalidInput, "GCS path must be gs://bucket/object", goerr.V("path", path))
	}
	return bucket, object, true, nil
}

type readCloser struct {
	io.Reader
	close func() error
}

func (x *readCloser) Close() error {
	return x.close()
}

// OpenSource opens an observation log from a local path or a gs:// URL.
func OpenSource(ctx context.Context, path string) (io.ReadCloser, error) {
	bucket, object, isGCS, err := ParseGCSPath(path)
	if err != nil {
		return nil, err
	}

	if !isGCS {
		f, err := os.Open(path)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open observation log", goerr.V("path", path))
		}
		return f, nil
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}
	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		_ = client.Close()
		return nil, goerr.Wrap(err, "failed to read GCS object",
			goerr.V("bucket", bucket), goerr.V("object", object))
	}

	return &readCloser{
		Reader: r,
		close: func() error {
			rErr := r.Close()
			cErr := client.Close()
			if rErr != nil {
				return goerr.Wrap(rErr, "failed to close GCS reader")
			}
			if cErr != nil {
				return goerr.Wrap(cErr, "failed to close storage client")
			}
			return nil
		},
	}, nil
}
