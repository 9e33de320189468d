package transport

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"logvault/internal/faults"
	"logvault/internal/registry"
	"logvault/internal/sshtest"
)

func open(t *testing.T, srv *sshtest.Server) *Session {
	t.Helper()
	sess, err := Open(srv.Addr, srv.User, registry.PasswordAuth{Password: srv.Password}, 5*time.Second)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(sess.CloseQuietly)
	return sess
}

func TestOpenPasswordAuth(t *testing.T) {
	srv := sshtest.Start(t, sshtest.Options{})
	sess := open(t, srv)
	if sess.Host() != srv.Addr {
		t.Errorf("Host() = %q, want %q", sess.Host(), srv.Addr)
	}
}

func TestOpenBadPasswordIsConnectFailure(t *testing.T) {
	srv := sshtest.Start(t, sshtest.Options{})
	_, err := Open(srv.Addr, srv.User, registry.PasswordAuth{Password: "wrong"}, 5*time.Second)
	if !faults.IsConnectFailure(err) {
		t.Fatalf("got %v, want ConnectFailure", err)
	}
	if err != nil && strings.Contains(err.Error(), "wrong") {
		t.Error("error text must not leak the password")
	}
}

func TestOpenUnreachableHostIsConnectFailure(t *testing.T) {
	// Port 1 on loopback is reliably closed.
	_, err := Open("127.0.0.1:1", "tester", registry.PasswordAuth{Password: "x"}, 2*time.Second)
	if !faults.IsConnectFailure(err) {
		t.Fatalf("got %v, want ConnectFailure", err)
	}
}

func TestOpenKeyAuth(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("convert public key: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatalf("marshal private key: %v", err)
	}
	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	srv := sshtest.Start(t, sshtest.Options{AuthorizedKey: sshPub})

	sess, err := Open(srv.Addr, srv.User, registry.KeyAuth{KeyPath: keyPath}, 5*time.Second)
	if err != nil {
		t.Fatalf("Open with key: %v", err)
	}
	sess.CloseQuietly()
}

func TestOpenKeyAuthMissingKeyFile(t *testing.T) {
	srv := sshtest.Start(t, sshtest.Options{})
	_, err := Open(srv.Addr, srv.User, registry.KeyAuth{KeyPath: "/nonexistent/key"}, 5*time.Second)
	if !faults.IsConnectFailure(err) {
		t.Fatalf("got %v, want ConnectFailure", err)
	}
}

func TestRunCommand(t *testing.T) {
	srv := sshtest.Start(t, sshtest.Options{
		Exec: func(cmd string, ch ssh.Channel) {
			if cmd != "echo hello" {
				ch.Stderr().Write([]byte("unexpected command\n"))
				sshtest.SendExitStatus(ch, 2)
				return
			}
			ch.Write([]byte("hello\n"))
			sshtest.SendExitStatus(ch, 0)
		},
	})
	sess := open(t, srv)

	stdout, stderr, exitCode, err := sess.RunCommand("echo hello")
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if exitCode != 0 {
		t.Errorf("exit code = %d (stderr %q)", exitCode, stderr)
	}
	if stdout != "hello\n" {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestRunCommandNonZeroExitIsNotAnError(t *testing.T) {
	srv := sshtest.Start(t, sshtest.Options{
		Exec: func(cmd string, ch ssh.Channel) {
			ch.Stderr().Write([]byte("ls: cannot access 'app*.log*': No such file or directory\n"))
			sshtest.SendExitStatus(ch, 2)
		},
	})
	sess := open(t, srv)

	stdout, stderr, exitCode, err := sess.RunCommand("ls -t 'app'*.log*")
	if err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	if exitCode != 2 {
		t.Errorf("exit code = %d, want 2", exitCode)
	}
	if stdout != "" {
		t.Errorf("stdout = %q, want empty", stdout)
	}
	if !strings.Contains(stderr, "No such file") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestListAndStat(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"app-01-04-2024.log", "app-02-04-2024.log"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x\n"), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	srv := sshtest.Start(t, sshtest.Options{ServeSFTP: true})
	sess := open(t, srv)

	infos, err := sess.List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("List returned %d entries, want 2", len(infos))
	}

	info, err := sess.Stat(filepath.Join(dir, "app-01-04-2024.log"))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 2 {
		t.Errorf("Stat size = %d, want 2", info.Size())
	}

	if _, err := sess.List(filepath.Join(dir, "missing")); !faults.IsTransport(err) {
		t.Errorf("List(missing) = %v, want TransportError", err)
	}
}

func TestFetch(t *testing.T) {
	dir := t.TempDir()
	content := []byte("the log contents\n")
	remote := filepath.Join(dir, "app-03-04-2024.log")
	if err := os.WriteFile(remote, content, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	srv := sshtest.Start(t, sshtest.Options{ServeSFTP: true})
	sess := open(t, srv)

	local := filepath.Join(t.TempDir(), "fetched.log")
	if err := sess.Fetch(remote, local); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	got, err := os.ReadFile(local)
	if err != nil {
		t.Fatalf("read fetched: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("fetched %q, want %q", got, content)
	}
}

func TestFetchMissingRemoteLeavesNoLocalFile(t *testing.T) {
	srv := sshtest.Start(t, sshtest.Options{ServeSFTP: true})
	sess := open(t, srv)

	local := filepath.Join(t.TempDir(), "fetched.log")
	err := sess.Fetch("/nonexistent/remote.log", local)
	if !faults.IsTransport(err) {
		t.Fatalf("got %v, want TransportError", err)
	}
	if _, statErr := os.Stat(local); !os.IsNotExist(statErr) {
		t.Error("no local file may remain after a failed fetch")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	srv := sshtest.Start(t, sshtest.Options{})
	sess, err := Open(srv.Addr, srv.User, registry.PasswordAuth{Password: srv.Password}, 5*time.Second)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
