package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ncw/swift/v2"

	"github.com/dmitrijs2005/drivestore/internal/netx"
)

// SwiftOptions carries the connection settings for an OpenStack Swift
// backend.
type SwiftOptions struct {
	UserName  string
	APIKey    string
	AuthURL   string
	Tenant    string
	Region    string
	Container string
	// BaseURL is the public URL base the container is served under.
	BaseURL string
}

// SwiftBackend stores blobs in a Swift container.
type SwiftBackend struct {
	conn      *swift.Connection
	container string
	baseURL   string

	ensureOnce sync.Once
	ensureErr  error
}

// NewSwiftBackend authenticates against the Swift endpoint.
func NewSwiftBackend(ctx context.Context, opts SwiftOptions) (*SwiftBackend, error) {
	conn := &swift.Connection{
		UserName: opts.UserName,
		ApiKey:   opts.APIKey,
		AuthUrl:  opts.AuthURL,
		Tenant:   opts.Tenant,
		Region:   opts.Region,
	}
	if err := conn.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("swift authenticate: %w", err)
	}

	return &SwiftBackend{
		conn:      conn,
		container: opts.Container,
		baseURL:   strings.TrimSuffix(opts.BaseURL, "/"),
	}, nil
}

// ensureContainer creates the container on first use.
func (b *SwiftBackend) ensureContainer(ctx context.Context) error {
	b.ensureOnce.Do(func() {
		_, _, err := b.conn.Container(ctx, b.container)
		if errors.Is(err, swift.ContainerNotFound) {
			err = b.conn.ContainerCreate(ctx, b.container, nil)
		}
		b.ensureErr = err
	})
	return b.ensureErr
}

// Put uploads the content under key with an immutable cache policy.
func (b *SwiftBackend) Put(ctx context.Context, key string, content io.Reader, size int64, contentType, dispositionName string) error {
	if err := b.ensureContainer(ctx); err != nil {
		return fmt.Errorf("swift container %s: %w", b.container, err)
	}

	headers := swift.Headers{"Cache-Control": cacheControlImmutable}
	if dispositionName != "" {
		headers["Content-Disposition"] = netx.ContentDisposition("inline", dispositionName)
	}

	w, err := b.conn.ObjectCreate(ctx, b.container, key, false, "", contentType, headers)
	if err != nil {
		return fmt.Errorf("swift create %s: %w", key, err)
	}
	if _, err := io.Copy(w, content); err != nil {
		w.Close()
		return fmt.Errorf("swift write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("swift close %s: %w", key, err)
	}
	return nil
}

// Open streams the object stored under key.
func (b *SwiftBackend) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f, _, err := b.conn.ObjectOpen(ctx, b.container, key, false, nil)
	if err != nil {
		if errors.Is(err, swift.ObjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("swift open %s: %w", key, err)
	}
	return f, nil
}

// Delete removes the object under key. Missing keys are not an error.
func (b *SwiftBackend) Delete(ctx context.Context, key string) error {
	err := b.conn.ObjectDelete(ctx, b.container, key)
	if err != nil && !errors.Is(err, swift.ObjectNotFound) {
		return fmt.Errorf("swift delete %s: %w", key, err)
	}
	return nil
}

// PublicURL derives the object's public URL from the configured base.
func (b *SwiftBackend) PublicURL(key string) string {
	return b.baseURL + "/" + b.container + "/" + key
}

// Kind identifies this backend.
func (b *SwiftBackend) Kind() string { return KindSwift }
