package modules

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/graniet/kheish/internal/rag"
)

// sshSession is the connection state for one SSHModule instance. It is
// shared by every task using the module; callers must not assume
// session isolation between concurrent tasks.
type sshSession struct {
	connected          bool
	host               string
	user               string
	key                string
	passphraseRequired bool
	passphrase         string
}

// SSHModule runs remote commands and transfers files through the
// system ssh/scp binaries.
type SSHModule struct {
	mu      sync.Mutex
	session sshSession

	// askConfirm and askPassword handle passphrase-protected keys.
	// Overridable for tests; the defaults prompt on the terminal.
	askConfirm  func(prompt string) (bool, error)
	askPassword func(prompt string) (string, error)
}

// NewSSHModule creates the module with a disconnected session.
func NewSSHModule() *SSHModule {
	return &SSHModule{
		askConfirm:  confirmOnTerminal,
		askPassword: passwordOnTerminal,
	}
}

func (m *SSHModule) Name() string { return "ssh" }

func confirmOnTerminal(prompt string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, errors.New("cannot confirm passphrase use: no terminal attached")
	}
	fmt.Printf("%s [Y/n] ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "" || answer == "y" || answer == "yes", nil
}

func passwordOnTerminal(prompt string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", errors.New("cannot read passphrase: no terminal attached")
	}
	fmt.Printf("%s: ", prompt)
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pass), nil
}

// keyNeedsPassphrase probes the key with ssh-keygen.
func keyNeedsPassphrase(keyPath string) bool {
	cmd := exec.Command("ssh-keygen", "-y", "-f", keyPath)
	cmd.Stdin = nil
	var stderr strings.Builder
	cmd.Stderr = &stderr
	_ = cmd.Run()
	return strings.Contains(strings.ToLower(stderr.String()), "enter passphrase")
}

// runRemoteCommand executes ssh or scp with the session credentials.
func runRemoteCommand(ctx context.Context, baseCmd string, args []string, session *sshSession) (string, error) {
	cmdArgs := []string{}
	if session.passphrase != "" {
		if _, err := exec.LookPath("sshpass"); err != nil {
			return "", errors.New("key requires a passphrase, but 'sshpass' is not installed; install it or provide a key without a passphrase")
		}
		cmdArgs = append(cmdArgs, "-p", session.passphrase, baseCmd)
		baseCmd = "sshpass"
	}
	if session.key != "" {
		cmdArgs = append(cmdArgs, "-i", session.key)
	}
	cmdArgs = append(cmdArgs, args...)

	cmd := exec.CommandContext(ctx, baseCmd, cmdArgs...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil && stdout.Len() == 0 && stderr.Len() == 0 {
		return "", err
	}
	if strings.TrimSpace(stderr.String()) != "" {
		return fmt.Sprintf("STDOUT:\n%s\n\nSTDERR:\n%s", stdout.String(), stderr.String()), nil
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (m *SSHModule) HandleAction(ctx context.Context, _ rag.VectorStore, action string, params []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch action {
	case "connect":
		return m.connect(params)

	case "run":
		if len(params) == 0 {
			return "", errors.New("missing command. Usage: ssh run \"<command>\"")
		}
		if !m.session.connected {
			return "", errors.New("not connected to any SSH host. Use ssh connect first")
		}
		target := m.session.user + "@" + m.session.host
		return runRemoteCommand(ctx, "ssh", []string{target, strings.Join(params, " ")}, &m.session)

	case "upload":
		if len(params) < 2 {
			return "", errors.New("usage: ssh upload <local_path> <remote_path>")
		}
		if !m.session.connected {
			return "", errors.New("not connected. Use ssh connect first")
		}
		target := fmt.Sprintf("%s@%s:%s", m.session.user, m.session.host, params[1])
		return runRemoteCommand(ctx, "scp", []string{params[0], target}, &m.session)

	case "download":
		if len(params) < 2 {
			return "", errors.New("usage: ssh download <remote_path> <local_path>")
		}
		if !m.session.connected {
			return "", errors.New("not connected. Use ssh connect first")
		}
		source := fmt.Sprintf("%s@%s:%s", m.session.user, m.session.host, params[0])
		return runRemoteCommand(ctx, "scp", []string{source, params[1]}, &m.session)

	case "disconnect":
		if !m.session.connected {
			return "No active SSH session.", nil
		}
		m.session = sshSession{}
		return "SSH session disconnected.", nil

	case "check_connection":
		if m.session.connected {
			return fmt.Sprintf("Connected to %s@%s", m.session.user, m.session.host), nil
		}
		return "Not connected.", nil

	default:
		return "", fmt.Errorf("unknown action %q", action)
	}
}

func (m *SSHModule) connect(params []string) (string, error) {
	var host, user, key string
	for _, p := range params {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(k) {
		case "host":
			host = strings.TrimSpace(v)
		case "user":
			user = strings.TrimSpace(v)
		case "key":
			key = strings.TrimSpace(v)
		}
	}
	if host == "" || user == "" {
		return "", errors.New("missing host or user parameter. Usage: ssh connect host=<host> user=<user> [key=<path>]")
	}

	if key == "" {
		if home, err := os.UserHomeDir(); err == nil {
			defaultKey := filepath.Join(home, ".ssh", "id_rsa")
			if _, err := os.Stat(defaultKey); err == nil {
				key = defaultKey
			}
		}
	}

	m.session = sshSession{host: host, user: user, key: key}

	if key != "" && keyNeedsPassphrase(key) {
		m.session.passphraseRequired = true
		confirmed, err := m.askConfirm("The chosen key is passphrase-protected. Provide the passphrase now?")
		if err != nil {
			return "", err
		}
		if !confirmed {
			return "", errors.New("key requires a passphrase and none was provided; cannot connect")
		}
		pass, err := m.askPassword("Enter your key passphrase")
		if err != nil {
			return "", err
		}
		m.session.passphrase = pass
	}

	m.session.connected = true
	return "SSH session info stored. Use 'ssh run \"<command>\"' to execute commands.", nil
}

func (m *SSHModule) Actions() []Action {
	return []Action{
		{Name: "connect", ArgCount: 1, Description: "Connect to a remote server. Usage: ssh connect host=<host> user=<user> [key=<path>]"},
		{Name: "run", ArgCount: 1, Description: "Run a command on the remote server. Usage: ssh run \"<command>\""},
		{Name: "disconnect", ArgCount: 0, Description: "Disconnect the current SSH session."},
		{Name: "upload", ArgCount: 2, Description: "Upload a local file. Usage: ssh upload <local_path> <remote_path>"},
		{Name: "download", ArgCount: 2, Description: "Download a file. Usage: ssh download <remote_path> <local_path>"},
		{Name: "check_connection", ArgCount: 0, Description: "Check if currently connected."},
	}
}
