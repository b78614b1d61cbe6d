package storage

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

const (
	SchemeS3   = "s3"
	SchemeFile = "file"
)

// Location is a dataset or export URI split into the store that holds it and
// the key prefix inside that store. For file locations Bucket is the
// absolute directory and Prefix is empty.
type Location struct {
	Scheme string
	Bucket string
	Prefix string
}

func (l Location) String() string {
	switch l.Scheme {
	case SchemeFile:
		return "file://" + l.Bucket
	default:
		if l.Prefix == "" {
			return l.Scheme + "://" + l.Bucket + "/"
		}
		return l.Scheme + "://" + l.Bucket + "/" + l.Prefix + "/"
	}
}

// ParseLocation accepts s3://bucket/prefix, s3a:// and s3n:// aliases,
// file:///abs/dir and bare absolute paths.
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, fmt.Errorf("location is required")
	}
	if strings.HasPrefix(raw, "/") {
		return Location{Scheme: SchemeFile, Bucket: filepath.Clean(raw)}, nil
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("parse location %q: %w", raw, err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "s3", "s3a", "s3n":
		if parsed.Host == "" {
			return Location{}, fmt.Errorf("location %q has no bucket", raw)
		}
		return Location{Scheme: SchemeS3, Bucket: parsed.Host, Prefix: cleanKeyPrefix(parsed.Path)}, nil
	case "file":
		dir := parsed.Path
		if parsed.Host != "" && parsed.Host != "localhost" {
			return Location{}, fmt.Errorf("file location %q must be local", raw)
		}
		if !strings.HasPrefix(dir, "/") {
			return Location{}, fmt.Errorf("file location %q must be absolute", raw)
		}
		return Location{Scheme: SchemeFile, Bucket: filepath.Clean(dir)}, nil
	default:
		return Location{}, fmt.Errorf("unsupported location scheme %q", parsed.Scheme)
	}
}

func cleanKeyPrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	prefix = path.Clean(prefix)
	if prefix == "." {
		return ""
	}
	return prefix
}

// OpenerFunc adapts a plain function to Opener.
type OpenerFunc func(ctx context.Context, loc Location) (ObjectStore, error)

func (f OpenerFunc) Open(ctx context.Context, loc Location) (ObjectStore, error) {
	return f(ctx, loc)
}

// Router dispatches to the opener registered for a location's scheme.
type Router map[string]Opener

func (r Router) Open(ctx context.Context, loc Location) (ObjectStore, error) {
	opener, ok := r[loc.Scheme]
	if !ok || opener == nil {
		return nil, fmt.Errorf("no object store configured for scheme %q", loc.Scheme)
	}
	return opener.Open(ctx, loc)
}
