// Package sshexec is the remote back-end for pkg/executor: it reuses one
// long-lived SSH connection to the hypervisor host instead of dialing fresh
// for every command, mirroring the single pooled connection the original
// Proxmox automation kept via paramiko.
package sshexec

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/cuemby/lxcautoscaled/pkg/executor"
)

// Config describes how to reach the remote hypervisor host.
type Config struct {
	Host string
	Port int

	User     string
	Password string
	KeyPath  string

	DialTimeout time.Duration
}

// Remote is an executor.Executor backed by a reused SSH connection. It
// reconnects lazily the next time Run is called after a transport failure.
type Remote struct {
	cfg Config

	mu     sync.Mutex
	client *ssh.Client
}

// New returns a Remote executor. It does not dial until the first Run call.
func New(cfg Config) *Remote {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &Remote{cfg: cfg}
}

// Close tears down the pooled connection, if any.
func (r *Remote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}

func (r *Remote) dial() (*ssh.Client, error) {
	auth, err := r.authMethods()
	if err != nil {
		return nil, err
	}

	clientCfg := &ssh.ClientConfig{
		User:            r.cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // hypervisor host is operator-trusted, matches the original's AutoAddPolicy
		Timeout:         r.cfg.DialTimeout,
	}

	addr := net.JoinHostPort(r.cfg.Host, fmt.Sprintf("%d", r.cfg.Port))
	return ssh.Dial("tcp", addr, clientCfg)
}

func (r *Remote) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if r.cfg.KeyPath != "" {
		keyBytes, err := os.ReadFile(r.cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("sshexec: read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("sshexec: parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if r.cfg.Password != "" {
		methods = append(methods, ssh.Password(r.cfg.Password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("sshexec: no authentication method configured")
	}
	return methods, nil
}

// Run implements executor.Executor, opening one session per call on the
// pooled connection (dialing fresh if the pool is empty or broken).
func (r *Remote) Run(ctx context.Context, argv []string, timeout time.Duration) (string, error) {
	if len(argv) == 0 {
		return "", fmt.Errorf("sshexec: empty argv")
	}
	if timeout <= 0 {
		timeout = executor.DefaultTimeout
	}

	client, err := r.client_(ctx)
	if err != nil {
		return "", executor.ErrTransport
	}

	session, err := client.NewSession()
	if err != nil {
		// stale pooled connection; drop it so the next call redials
		r.mu.Lock()
		r.client = nil
		r.mu.Unlock()
		return "", executor.ErrTransport
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	cmdline := quoteArgv(argv)

	done := make(chan error, 1)
	go func() { done <- session.Run(cmdline) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return "", executor.ErrTimeout
	case <-time.After(timeout):
		_ = session.Signal(ssh.SIGKILL)
		return "", executor.ErrTimeout
	case runErr := <-done:
		if runErr != nil {
			if exitErr, ok := runErr.(*ssh.ExitError); ok {
				return "", &executor.NonZeroExit{Code: exitErr.ExitStatus(), Stderr: stderr.String()}
			}
			return "", executor.ErrTransport
		}
		return trimTrailingNewline(stdout.String()), nil
	}
}

func (r *Remote) client_(ctx context.Context) (*ssh.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return r.client, nil
	}

	client, err := r.dial()
	if err != nil {
		return nil, err
	}
	r.client = client
	return client, nil
}

// quoteArgv joins a pre-tokenized argv into a single shell-safe command
// line for the remote side, since ssh.Session.Run always executes through
// the remote user's shell. Each token is single-quoted.
func quoteArgv(argv []string) string {
	var b bytes.Buffer
	for i, a := range argv {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte('\'')
		for _, r := range a {
			if r == '\'' {
				b.WriteString(`'\''`)
				continue
			}
			b.WriteRune(r)
		}
		b.WriteByte('\'')
	}
	return b.String()
}

func trimTrailingNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
