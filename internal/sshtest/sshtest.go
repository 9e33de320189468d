// Package sshtest runs a minimal in-process SSH server for tests. It
// accepts password authentication, dispatches exec requests to a
// test-provided handler, and can serve the sftp subsystem against the local
// filesystem so tests point RemoteDir at a t.TempDir.
package sshtest

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// ExecHandler receives the command of an exec request and full control of
// the channel for writing stdout/stderr and the exit status.
type ExecHandler func(cmd string, ch ssh.Channel)

// Options configures the test server.
type Options struct {
	User     string // accepted username (default "tester")
	Password string // accepted password (default "sesame")

	// AuthorizedKey, when set, is additionally accepted for public-key
	// authentication.
	AuthorizedKey ssh.PublicKey

	// Exec handles exec requests. Nil rejects them.
	Exec ExecHandler

	// ServeSFTP serves the "sftp" subsystem against the local filesystem.
	ServeSFTP bool
}

// Server is a running test SSH server.
type Server struct {
	Addr     string
	User     string
	Password string

	listener net.Listener
}

// Start launches the server on a random loopback port. It is stopped
// automatically via t.Cleanup.
func Start(t *testing.T, opts Options) *Server {
	t.Helper()

	if opts.User == "" {
		opts.User = "tester"
	}
	if opts.Password == "" {
		opts.Password = "sesame"
	}

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	if err != nil {
		t.Fatalf("create host signer: %v", err)
	}

	serverCfg := &ssh.ServerConfig{
		PasswordCallback: func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if conn.User() == opts.User && string(password) == opts.Password {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("access denied")
		},
	}
	if opts.AuthorizedKey != nil {
		authorized := opts.AuthorizedKey.Marshal()
		serverCfg.PublicKeyCallback = func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if conn.User() == opts.User && bytes.Equal(key.Marshal(), authorized) {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("unknown public key")
		}
	}
	serverCfg.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go handleConn(conn, serverCfg, opts)
		}
	}()

	t.Cleanup(func() { listener.Close() })

	return &Server{
		Addr:     listener.Addr().String(),
		User:     opts.User,
		Password: opts.Password,
		listener: listener,
	}
}

func handleConn(netConn net.Conn, config *ssh.ServerConfig, opts Options) {
	defer netConn.Close()
	srvConn, chans, reqs, err := ssh.NewServerConn(netConn, config)
	if err != nil {
		return
	}
	defer srvConn.Close()
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go handleSession(ch, requests, opts)
	}
}

func handleSession(ch ssh.Channel, reqs <-chan *ssh.Request, opts Options) {
	defer ch.Close()

	for req := range reqs {
		switch req.Type {
		case "exec":
			cmd, ok := parseString(req.Payload)
			if !ok || opts.Exec == nil {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			opts.Exec(cmd, ch)
			return

		case "subsystem":
			name, ok := parseString(req.Payload)
			if !ok || name != "sftp" || !opts.ServeSFTP {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			serveSFTP(ch)
			return

		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

func serveSFTP(ch ssh.Channel) {
	server, err := sftp.NewServer(ch)
	if err != nil {
		return
	}
	defer server.Close()
	if err := server.Serve(); err != nil && err != io.EOF {
		return
	}
}

// SendExitStatus sends an exit-status request on the SSH channel; exec
// handlers call it before returning.
func SendExitStatus(ch ssh.Channel, exitCode int) {
	payload := ssh.Marshal(struct{ Status uint32 }{uint32(exitCode)})
	ch.SendRequest("exit-status", false, payload)
}

// parseString reads a length-prefixed SSH string from a request payload.
func parseString(payload []byte) (string, bool) {
	if len(payload) < 4 {
		return "", false
	}
	n := int(payload[0])<<24 | int(payload[1])<<16 | int(payload[2])<<8 | int(payload[3])
	if len(payload) < 4+n {
		return "", false
	}
	return string(payload[4 : 4+n]), true
}
