// Package transport provides a scoped, single-use SSH/SFTP session. Each
// session is opened for exactly one logical remote operation (a locate or a
// fetch) and must be closed on every exit path; sessions are never pooled or
// shared across pipeline stages, trading connection-setup cost for failure
// isolation.
package transport

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"logvault/internal/faults"
	"logvault/internal/registry"
)

// sshPort is the fixed remote port; the registry carries no port field.
const sshPort = "22"

// Session is an authenticated SSH connection with lazily-created SFTP
// access. It is not safe for concurrent use; each in-flight request owns
// its sessions exclusively.
type Session struct {
	host   string
	client *ssh.Client
	sftp   *sftp.Client
}

// Open dials host (port 22 unless the host carries an explicit port) and
// authenticates per the resolved auth method. Host keys
// are accepted without verification; that is an explicit trust trade-off of
// this deployment, not an oversight. Authentication failures, unreachable
// hosts, and timeouts all surface as connect failures.
func Open(host, user string, auth registry.AuthMethod, timeout time.Duration) (*Session, error) {
	methods, err := authMethods(auth)
	if err != nil {
		return nil, faults.NewConnectFailure(host, err)
	}

	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	addr := host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		addr = net.JoinHostPort(host, sshPort)
	}
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, faults.NewConnectFailure(host, err)
	}
	return &Session{host: host, client: client}, nil
}

// authMethods converts the registry's auth union into ssh.AuthMethods.
func authMethods(auth registry.AuthMethod) ([]ssh.AuthMethod, error) {
	switch a := auth.(type) {
	case registry.PasswordAuth:
		return []ssh.AuthMethod{ssh.Password(a.Password)}, nil
	case registry.KeyAuth:
		keyData, err := os.ReadFile(a.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	case registry.AgentAuth:
		sock := os.Getenv("SSH_AUTH_SOCK")
		if sock == "" {
			return nil, fmt.Errorf("agent auth selected but SSH_AUTH_SOCK is not set")
		}
		conn, err := net.Dial("unix", sock)
		if err != nil {
			return nil, fmt.Errorf("dial ssh agent: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeysCallback(agent.NewClient(conn).Signers)}, nil
	default:
		return nil, fmt.Errorf("unsupported auth method %T", auth)
	}
}

// Host returns the remote host this session is connected to.
func (s *Session) Host() string { return s.host }

// sftpClient creates the SFTP subsystem client on first use.
func (s *Session) sftpClient() (*sftp.Client, error) {
	if s.sftp != nil {
		return s.sftp, nil
	}
	c, err := sftp.NewClient(s.client)
	if err != nil {
		return nil, faults.NewTransportError("sftp subsystem", s.host, err)
	}
	s.sftp = c
	return c, nil
}

// List returns the directory entries of dir, with stat information (size,
// modification time) included. An empty directory is a valid, empty result.
func (s *Session) List(dir string) ([]os.FileInfo, error) {
	c, err := s.sftpClient()
	if err != nil {
		return nil, err
	}
	infos, err := c.ReadDir(dir)
	if err != nil {
		return nil, faults.NewTransportError("list "+dir, s.host, err)
	}
	return infos, nil
}

// Stat returns stat information for a single remote path.
func (s *Session) Stat(path string) (os.FileInfo, error) {
	c, err := s.sftpClient()
	if err != nil {
		return nil, err
	}
	info, err := c.Stat(path)
	if err != nil {
		return nil, faults.NewTransportError("stat "+path, s.host, err)
	}
	return info, nil
}

// RunCommand executes cmd over a fresh SSH channel and returns stdout,
// stderr, and the exit code. A non-zero exit is not an error here; callers
// decide what remote exit codes mean. Only transport-level failures return
// a non-nil error.
func (s *Session) RunCommand(cmd string) (stdout, stderr string, exitCode int, err error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return "", "", -1, faults.NewTransportError("open exec channel", s.host, err)
	}
	defer sess.Close()

	var outBuf, errBuf bytes.Buffer
	sess.Stdout = &outBuf
	sess.Stderr = &errBuf

	if runErr := sess.Run(cmd); runErr != nil {
		if exitErr, ok := runErr.(*ssh.ExitError); ok {
			return outBuf.String(), errBuf.String(), exitErr.ExitStatus(), nil
		}
		return outBuf.String(), errBuf.String(), -1, faults.NewTransportError("run command", s.host, runErr)
	}
	return outBuf.String(), errBuf.String(), 0, nil
}

// Fetch copies remotePath to localPath. On any failure the partially
// written local file is removed before the error is returned, so no
// truncated artifact is ever observable.
func (s *Session) Fetch(remotePath, localPath string) error {
	c, err := s.sftpClient()
	if err != nil {
		return err
	}

	src, err := c.Open(remotePath)
	if err != nil {
		return faults.NewTransportError("open "+remotePath, s.host, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(localPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return faults.NewTransportError("create local file", s.host, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		removeQuietly(localPath)
		return faults.NewTransportError("fetch "+remotePath, s.host, err)
	}
	if err := dst.Close(); err != nil {
		removeQuietly(localPath)
		return faults.NewTransportError("flush local file", s.host, err)
	}
	return nil
}

// Close tears the session down. Callers on error paths should use
// CloseQuietly instead so a close failure never masks the primary result.
func (s *Session) Close() error {
	var firstErr error
	if s.sftp != nil {
		if err := s.sftp.Close(); err != nil {
			firstErr = err
		}
		s.sftp = nil
	}
	if s.client != nil {
		if err := s.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.client = nil
	}
	return firstErr
}

// CloseQuietly closes the session, logging rather than returning any
// failure.
func (s *Session) CloseQuietly() {
	if err := s.Close(); err != nil {
		log.Printf("[transport] close session to %s: %v", s.host, err)
	}
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("[transport] remove partial file %s: %v", path, err)
	}
}
