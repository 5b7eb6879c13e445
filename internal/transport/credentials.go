package transport

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	envSSHKeyPath     = "TALLYCTL_SSH_KEY_PATH"
	envKnownHostsPath = "TALLYCTL_SSH_KNOWN_HOSTS_PATH"
)

// discoverAuthMethods returns credential sets in the order they should be
// tried: the SSH agent first, then a private key file.
func discoverAuthMethods(explicitKeyPath string) ([][]ssh.AuthMethod, []io.Closer, error) {
	var (
		attempts [][]ssh.AuthMethod
		closers  []io.Closer
		problems []string
	)

	if sock := strings.TrimSpace(os.Getenv("SSH_AUTH_SOCK")); sock != "" {
		conn, err := net.Dial("unix", sock)
		if err != nil {
			problems = append(problems, fmt.Sprintf("connect SSH_AUTH_SOCK: %v", err))
		} else {
			client := agent.NewClient(conn)
			attempts = append(attempts, []ssh.AuthMethod{ssh.PublicKeysCallback(client.Signers)})
			closers = append(closers, conn)
		}
	} else {
		problems = append(problems, "SSH_AUTH_SOCK is not set")
	}

	if keyPath := resolvePrivateKeyPath(explicitKeyPath); keyPath != "" {
		method, err := authMethodFromPrivateKey(keyPath)
		if err != nil {
			problems = append(problems, err.Error())
		} else {
			attempts = append(attempts, []ssh.AuthMethod{method})
		}
	} else {
		problems = append(problems, "no private key found")
	}

	if len(attempts) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrSSHAgentUnavailable, strings.Join(problems, "; "))
	}
	return attempts, closers, nil
}

func resolvePrivateKeyPath(explicit string) string {
	if v := strings.TrimSpace(explicit); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv(envSSHKeyPath)); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
		path := filepath.Join(home, ".ssh", name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func authMethodFromPrivateKey(path string) (ssh.AuthMethod, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key %s: %w", path, err)
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("parse private key %s: %w", path, err)
	}
	return ssh.PublicKeys(signer), nil
}

func knownHostsCallback(explicit string) (ssh.HostKeyCallback, error) {
	path := strings.TrimSpace(explicit)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(envKnownHostsPath))
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("%w: resolve user home for known_hosts: %v", ErrSSHHostKey, err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: known_hosts file not found at %s (create it via 'ssh <user>@<host>' or ssh-keyscan)", ErrSSHHostKey, path)
		}
		return nil, fmt.Errorf("%w: load known_hosts: %v", ErrSSHHostKey, err)
	}
	return cb, nil
}
