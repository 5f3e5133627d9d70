package snapshot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Store errors.
var (
	ErrNotFound          = errors.New("snapshot: not found")
	ErrStoreClosed       = errors.New("snapshot: store is closed")
	ErrInvalidName       = errors.New("snapshot: invalid name")
	ErrUnsupportedScheme = errors.New("snapshot: unsupported store scheme")
)

// Store persists blobs by name. Implementations must be safe for
// concurrent use.
type Store interface {
	// Save writes blob under name, replacing any previous value.
	Save(ctx context.Context, name string, blob []byte) error

	// Load returns the blob saved under name, or ErrNotFound.
	Load(ctx context.Context, name string) ([]byte, error)

	// Delete removes name. Deleting a missing name is not an error.
	Delete(ctx context.Context, name string) error

	// List returns every stored name in ascending order.
	List(ctx context.Context) ([]string, error)

	// Close releases the store's resources.
	Close() error
}

// ValidateName rejects names that cannot be used as a key in every store.
func ValidateName(name string) error {
	if name == "" || len(name) > 200 {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Open creates a store from a URL. Supported schemes are memory, file,
// bolt, redis, postgres (or postgresql) and s3. A bare path opens a file
// store.
func Open(ctx context.Context, rawURL string) (Store, error) {
	if rawURL == "" || rawURL == "memory:" || rawURL == "memory://" {
		return NewMemoryStore(), nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("snapshot: parse store url: %w", err)
	}

	switch u.Scheme {
	case "":
		return NewFileStore(rawURL)
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(localPath(u))
	case "bolt":
		return OpenBoltStore(localPath(u))
	case "redis", "rediss":
		return OpenRedisStore(ctx, rawURL, WithRedisPrefix(prefixParam(u, defaultRedisPrefix)))
	case "postgres", "postgresql":
		return OpenPostgresStore(ctx, rawURL)
	case "s3":
		return OpenS3Store(ctx, u)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
}

// localPath accepts both file:///abs/dir and the relative file://dir.
func localPath(u *url.URL) string {
	return u.Host + u.Path
}

func prefixParam(u *url.URL, def string) string {
	if p := u.Query().Get("prefix"); p != "" {
		return p
	}
	return def
}
