// Package storage turns provider output locations into short lived
// download links.
package storage

import (
	"fmt"
	"strings"
)

const (
	SchemeS3  = "s3"
	SchemeGCS = "gs"
)

// Location is an object in a bucket, written as s3://bucket/key or
// gs://bucket/key.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

func (l Location) String() string {
	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}

// IsObjectLocation reports whether raw names a bucket object rather than a
// public URL.
func IsObjectLocation(raw string) bool {
	return strings.HasPrefix(raw, SchemeS3+"://") || strings.HasPrefix(raw, SchemeGCS+"://")
}

func ParseLocation(raw string) (Location, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok || (scheme != SchemeS3 && scheme != SchemeGCS) {
		return Location{}, fmt.Errorf("unsupported object location %q", raw)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return Location{}, fmt.Errorf("object location %q needs a bucket and a key", raw)
	}
	return Location{Scheme: scheme, Bucket: bucket, Key: key}, nil
}
