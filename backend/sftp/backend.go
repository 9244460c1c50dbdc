// Package sftp provides an SFTP backend for linestream.
//
// Basic usage with password authentication:
//
//	backend, err := sftp.New(sftp.Config{
//	    Host:     "example.com",
//	    User:     "username",
//	    Password: "password",
//	})
//
// With SSH key authentication:
//
//	backend, err := sftp.New(sftp.Config{
//	    Host:    "example.com",
//	    User:    "username",
//	    KeyFile: "/path/to/id_rsa",
//	})
package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/grokify/linestream"
)

func init() {
	linestream.Register("sftp", NewFromConfig)
}

// Backend implements linestream.Backend for SFTP.
type Backend struct {
	sshClient  *ssh.Client
	sftpClient *sftp.Client
	config     Config
	closed     bool
	mu         sync.RWMutex
}

// New creates a new SFTP backend with the given configuration.
func New(cfg Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30
	}

	// Build SSH auth methods
	var authMethods []ssh.AuthMethod

	// Password auth
	if cfg.Password != "" {
		authMethods = append(authMethods, ssh.Password(cfg.Password))
	}

	// Key file auth
	if cfg.KeyFile != "" {
		keyAuth, err := keyFileAuth(cfg.KeyFile, cfg.KeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("sftp: loading key file: %w", err)
		}
		authMethods = append(authMethods, keyAuth)
	}

	if len(authMethods) == 0 {
		return nil, fmt.Errorf("sftp: no authentication method provided (password or key_file required)")
	}

	// Build SSH config.
	// NOTE: Host key verification is disabled by default. For production use,
	// configure KnownHostsFile in Config to enable host key verification.
	// This is a security risk for development/testing convenience.
	sshConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            authMethods,
		Timeout:         time.Duration(cfg.Timeout) * time.Second,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // G106: Intentional for dev/test; KnownHostsFile support planned
	}

	// Connect
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	sshClient, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, fmt.Errorf("sftp: SSH connection failed: %w", err)
	}

	// Create SFTP client
	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		if closeErr := sshClient.Close(); closeErr != nil {
			return nil, fmt.Errorf("sftp: SFTP session failed: %w (also failed to close SSH: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("sftp: SFTP session failed: %w", err)
	}

	return &Backend{
		sshClient:  sshClient,
		sftpClient: sftpClient,
		config:     cfg,
	}, nil
}

// NewFromConfig creates a new SFTP backend from a config map.
// This is used by the linestream registry.
func NewFromConfig(configMap map[string]string) (linestream.Backend, error) {
	cfg := ConfigFromMap(configMap)
	return New(cfg)
}

// keyFileAuth creates an SSH auth method from a private key file.
func keyFileAuth(keyFile, passphrase string) (ssh.AuthMethod, error) {
	keyData, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(keyData)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	return ssh.PublicKeys(signer), nil
}

// NewWriter creates a writer for the given path. Parent directories are
// created as needed. In append mode the remote file is opened for appending
// instead of truncation.
func (b *Backend) NewWriter(ctx context.Context, p string, opts ...linestream.StreamWriterOption) (io.WriteCloser, error) {
	if err := b.checkClosed(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath := b.fullPath(p)

	// Ensure parent directory exists
	dir := path.Dir(fullPath)
	if err := b.sftpClient.MkdirAll(dir); err != nil {
		return nil, fmt.Errorf("sftp: creating directory: %w", err)
	}

	cfg := linestream.ApplyStreamWriterOptions(opts...)

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if cfg.Append {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}

	f, err := b.sftpClient.OpenFile(fullPath, flags)
	if err != nil {
		return nil, b.translateError(err, p)
	}

	return f, nil
}

// NewReader creates a reader for the given path. The returned reader is the
// remote *sftp.File unless a limit is set, so it supports io.Seeker.
func (b *Backend) NewReader(ctx context.Context, p string, opts ...linestream.StreamReaderOption) (io.ReadCloser, error) {
	if err := b.checkClosed(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath := b.fullPath(p)
	cfg := linestream.ApplyStreamReaderOptions(opts...)

	f, err := b.sftpClient.Open(fullPath)
	if err != nil {
		return nil, b.translateError(err, p)
	}

	// Handle offset
	if cfg.Offset > 0 {
		if _, err := f.Seek(cfg.Offset, io.SeekStart); err != nil {
			if closeErr := f.Close(); closeErr != nil {
				return nil, fmt.Errorf("sftp: seeking to offset: %w (also failed to close: %v)", err, closeErr)
			}
			return nil, fmt.Errorf("sftp: seeking to offset: %w", err)
		}
	}

	// Handle limit
	if cfg.Limit > 0 {
		return &limitedReader{f, cfg.Limit}, nil
	}

	return f, nil
}

// limitedReader wraps a reader with a byte limit.
type limitedReader struct {
	r         io.ReadCloser
	remaining int64
}

func (lr *limitedReader) Read(p []byte) (n int, err error) {
	if lr.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > lr.remaining {
		p = p[:lr.remaining]
	}
	n, err = lr.r.Read(p)
	lr.remaining -= int64(n)
	return
}

func (lr *limitedReader) Close() error {
	return lr.r.Close()
}

// Exists checks if a path exists.
func (b *Backend) Exists(ctx context.Context, p string) (bool, error) {
	if err := b.checkClosed(); err != nil {
		return false, err
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	fullPath := b.fullPath(p)
	_, err := b.sftpClient.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, b.translateError(err, p)
	}
	return true, nil
}

// Stat returns metadata for a path.
func (b *Backend) Stat(ctx context.Context, p string) (linestream.FileInfo, error) {
	if err := b.checkClosed(); err != nil {
		return linestream.FileInfo{}, err
	}

	if err := ctx.Err(); err != nil {
		return linestream.FileInfo{}, err
	}

	fullPath := b.fullPath(p)
	info, err := b.sftpClient.Stat(fullPath)
	if err != nil {
		return linestream.FileInfo{}, b.translateError(err, p)
	}

	return linestream.FileInfo{
		Path:    p,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}, nil
}

// Delete removes a path.
func (b *Backend) Delete(ctx context.Context, p string) error {
	if err := b.checkClosed(); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	fullPath := b.fullPath(p)
	err := b.sftpClient.Remove(fullPath)
	if err != nil {
		// Delete is idempotent
		if os.IsNotExist(err) {
			return nil
		}
		return b.translateError(err, p)
	}
	return nil
}

// List lists paths with the given prefix.
func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	if err := b.checkClosed(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Determine the directory to list
	fullPrefix := b.fullPath(prefix)
	dir := fullPrefix
	namePrefix := ""

	// If prefix is not a directory, use parent dir and filter by name
	info, err := b.sftpClient.Stat(fullPrefix)
	if err != nil || !info.IsDir() {
		dir = path.Dir(fullPrefix)
		namePrefix = path.Base(fullPrefix)
	}

	var paths []string
	err = b.walkDir(ctx, dir, namePrefix, &paths)
	if err != nil {
		return nil, err
	}

	return paths, nil
}

func (b *Backend) walkDir(ctx context.Context, dir, namePrefix string, paths *[]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := b.sftpClient.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("sftp: listing directory: %w", err)
	}

	for _, entry := range entries {
		if namePrefix != "" && !strings.HasPrefix(entry.Name(), namePrefix) {
			continue
		}

		entryPath := path.Join(dir, entry.Name())
		relPath := strings.TrimPrefix(entryPath, b.config.Root)
		relPath = strings.TrimPrefix(relPath, "/")

		if entry.IsDir() {
			// Recurse into subdirectories
			if err := b.walkDir(ctx, entryPath, "", paths); err != nil {
				return err
			}
		} else {
			*paths = append(*paths, relPath)
		}
	}

	return nil
}

// Features describes what the SFTP backend supports.
func (b *Backend) Features() linestream.Features {
	return linestream.Features{
		Append:     true,
		RangeRead:  true,
		Seek:       true,
		ListPrefix: true,
	}
}

// Close releases any resources held by the backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true

	var errs []error
	if b.sftpClient != nil {
		if err := b.sftpClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.sshClient != nil {
		if err := b.sshClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("sftp: close errors: %v", errs)
	}
	return nil
}

// fullPath returns the full remote path.
func (b *Backend) fullPath(p string) string {
	if b.config.Root == "" {
		return p
	}
	return path.Join(b.config.Root, p)
}

// checkClosed returns an error if the backend is closed.
func (b *Backend) checkClosed() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return linestream.ErrBackendClosed
	}
	return nil
}

// translateError converts SFTP errors to linestream errors.
// The path parameter provides context for error messages.
func (b *Backend) translateError(err error, p string) error {
	if err == nil {
		return nil
	}

	if os.IsNotExist(err) {
		return linestream.ErrNotFound
	}

	if os.IsPermission(err) {
		return linestream.ErrPermissionDenied
	}

	// Check for path error
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		if os.IsNotExist(pathErr.Err) {
			return linestream.ErrNotFound
		}
		if os.IsPermission(pathErr.Err) {
			return linestream.ErrPermissionDenied
		}
	}

	// Check for net errors
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("sftp: network error for %q: %w", p, err)
	}

	return fmt.Errorf("sftp: error for %q: %w", p, err)
}

// Ensure Backend implements linestream.Backend
var _ linestream.Backend = (*Backend)(nil)
