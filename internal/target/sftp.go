package target

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const defaultSFTPPort = 22

// sftpTarget stores objects as files on an SFTP server. The prefix is the
// remote base directory; keys map to paths beneath it.
//
// SFTP has no native conditional writes. Create-only writes use O_EXCL and
// are atomic on the server; ETag-matched writes compare size and mtime first
// and are best effort.
type sftpTarget struct {
	keyspace
	name string
	dial func(ctx context.Context) (*sftp.Client, error)

	mu     sync.Mutex
	client *sftp.Client
}

func newSFTPTarget(cfg Config) (Target, error) {
	if cfg.Host == "" || cfg.User == "" {
		return nil, errors.New("host and user are required")
	}

	auth, err := sftpAuth(cfg.Password, cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	hostKeyCallback, err := sftpHostKeyCallback(cfg.HostKey)
	if err != nil {
		return nil, err
	}

	port := cfg.Port
	if port == 0 {
		port = defaultSFTPPort
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	sshConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
	}

	dial := func(ctx context.Context) (*sftp.Client, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		c, chans, reqs, err := ssh.NewClientConn(conn, addr, sshConfig)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
		}
		sshClient := ssh.NewClient(c, chans, reqs)
		client, err := sftp.NewClient(sshClient)
		if err != nil {
			sshClient.Close()
			return nil, fmt.Errorf("start sftp subsystem on %s: %w", addr, err)
		}
		return client, nil
	}

	return &sftpTarget{keyspace: newKeyspace(cfg.Prefix), name: cfg.Name, dial: dial}, nil
}

// newSFTPTargetWithClient wraps an established client.
func newSFTPTargetWithClient(name, prefix string, client *sftp.Client) *sftpTarget {
	return &sftpTarget{
		keyspace: newKeyspace(prefix),
		name:     name,
		client:   client,
		dial: func(context.Context) (*sftp.Client, error) {
			return nil, errors.New("sftp: connection closed")
		},
	}
}

func sftpAuth(password, privateKey string) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if privateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(privateKey))
		if err != nil {
			return nil, fmt.Errorf("parsing private_key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if password != "" {
		methods = append(methods, ssh.Password(password))
	}
	if len(methods) == 0 {
		return nil, errors.New("one of password or private_key is required")
	}
	return methods, nil
}

// sftpHostKeyCallback pins hostKey, given in authorized_keys format. An
// empty hostKey disables verification.
func sftpHostKeyCallback(hostKey string) (ssh.HostKeyCallback, error) {
	if hostKey == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	pk, _, _, _, err := ssh.ParseAuthorizedKey([]byte(hostKey))
	if err != nil {
		return nil, fmt.Errorf("parsing host_key: %w", err)
	}
	return ssh.FixedHostKey(pk), nil
}

func (t *sftpTarget) Name() string { return t.name }

// conn returns the cached client, dialing on first use.
func (t *sftpTarget) conn(ctx context.Context) (*sftp.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		return t.client, nil
	}
	c, err := t.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("sftp connect: %w", err)
	}
	t.client = c
	return c, nil
}

// check drops the cached client when err shows the connection is gone, so
// the next call redials.
func (t *sftpTarget) check(err error) error {
	if errors.Is(err, sftp.ErrSSHFxConnectionLost) || errors.Is(err, io.EOF) {
		t.mu.Lock()
		if t.client != nil {
			t.client.Close()
			t.client = nil
		}
		t.mu.Unlock()
	}
	return err
}

// Close closes the underlying connection, if any.
func (t *sftpTarget) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}

func sftpMeta(fi os.FileInfo) ObjectMeta {
	return ObjectMeta{
		ETag: fmt.Sprintf(`"%x-%x"`, fi.ModTime().Unix(), fi.Size()),
		Size: fi.Size(),
	}
}

func (t *sftpTarget) write(ctx context.Context, key string, body io.Reader, flags int) error {
	c, err := t.conn(ctx)
	if err != nil {
		return err
	}
	p := t.full(key)

	if dir := path.Dir(p); dir != "." && dir != "/" {
		if err := c.MkdirAll(dir); err != nil {
			return t.check(fmt.Errorf("sftp mkdir %q: %w", dir, err))
		}
	}

	f, err := c.OpenFile(p, flags)
	if err != nil {
		if flags&os.O_EXCL != 0 {
			if _, serr := c.Stat(p); serr == nil {
				return ErrPreconditionFailed
			}
		}
		return t.check(fmt.Errorf("sftp open %q: %w", key, err))
	}
	if _, err := f.ReadFrom(body); err != nil {
		f.Close()
		return t.check(fmt.Errorf("sftp write %q: %w", key, err))
	}
	if err := f.Close(); err != nil {
		return t.check(fmt.Errorf("sftp close %q: %w", key, err))
	}
	return nil
}

func (t *sftpTarget) Put(ctx context.Context, key string, body io.Reader, _ PutOptions) error {
	return t.write(ctx, key, body, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
}

func (t *sftpTarget) ConditionalPut(ctx context.Context, key string, body io.Reader, cond WriteCondition, _ PutOptions) error {
	if cond.IfNotExists {
		return t.write(ctx, key, body, os.O_WRONLY|os.O_CREATE|os.O_EXCL)
	}
	if cond.IfMatch != "" {
		meta, err := t.Head(ctx, key)
		if errors.Is(err, ErrNotFound) {
			return ErrPreconditionFailed
		}
		if err != nil {
			return err
		}
		if meta.ETag != cond.IfMatch {
			return ErrPreconditionFailed
		}
	}
	return t.write(ctx, key, body, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
}

func (t *sftpTarget) Get(ctx context.Context, key string) (io.ReadCloser, ObjectMeta, error) {
	c, err := t.conn(ctx)
	if err != nil {
		return nil, ObjectMeta{}, err
	}
	f, err := c.Open(t.full(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ObjectMeta{}, ErrNotFound
		}
		return nil, ObjectMeta{}, t.check(fmt.Errorf("sftp open %q: %w", key, err))
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ObjectMeta{}, t.check(fmt.Errorf("sftp stat %q: %w", key, err))
	}
	return f, sftpMeta(fi), nil
}

func (t *sftpTarget) Head(ctx context.Context, key string) (ObjectMeta, error) {
	c, err := t.conn(ctx)
	if err != nil {
		return ObjectMeta{}, err
	}
	fi, err := c.Stat(t.full(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ObjectMeta{}, ErrNotFound
		}
		return ObjectMeta{}, t.check(fmt.Errorf("sftp stat %q: %w", key, err))
	}
	return sftpMeta(fi), nil
}

func (t *sftpTarget) Delete(ctx context.Context, key string) error {
	c, err := t.conn(ctx)
	if err != nil {
		return err
	}
	if err := c.Remove(t.full(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return t.check(fmt.Errorf("sftp remove %q: %w", key, err))
	}
	return nil
}

func (t *sftpTarget) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	c, err := t.conn(ctx)
	if err != nil {
		return nil, err
	}

	root := strings.TrimSuffix(t.prefix, "/")
	if root == "" {
		root = "."
	}

	var out []ObjectInfo
	w := c.Walk(root)
	for w.Step() {
		if err := w.Err(); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, t.check(fmt.Errorf("sftp walk %q: %w", root, err))
		}
		if w.Stat().IsDir() {
			continue
		}
		key := t.logical(strings.TrimPrefix(w.Path(), "./"))
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		meta := sftpMeta(w.Stat())
		out = append(out, ObjectInfo{Key: key, Size: meta.Size, ETag: meta.ETag})
	}

	slices.SortFunc(out, func(a, b ObjectInfo) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}
