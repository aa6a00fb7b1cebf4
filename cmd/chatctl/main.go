// Command chatctl is a CLI client for the pairchat service.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/and161185/pairchat/internal/api"
)

// ---- token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "pairchat")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "pairchat")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tf tokenFile) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(tokenPath(), b, 0o600)
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", errors.New("no valid token (login required)")
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	return tf.AccessToken, nil
}

// ---- grpc dial ----

func loadTLS(caPath string, skipVerify bool) (credentials.TransportCredentials, error) {
	if skipVerify {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil //nolint:gosec // explicit dev flag
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

func dial(ctx context.Context, addr, caPath string, skipVerify, plaintext bool) (*grpc.ClientConn, error) {
	creds := insecure.NewCredentials()
	if !plaintext {
		var err error
		if creds, err = loadTLS(caPath, skipVerify); err != nil {
			return nil, err
		}
	}
	//nolint:staticcheck // DialContext is supported through 1.x; migrate when grpc.NewClient is stable
	return grpc.DialContext(ctx, addr, grpc.WithTransportCredentials(creds))
}

func usage() {
	fmt.Fprintf(os.Stderr, `chatctl CLI
Usage:
  chatctl -addr HOST:PORT [-cacert file | -insecure | -plaintext] <cmd> [flags] [args]

Account:
  version
  register  -u <username> -p <password>
  login     -u <username> -p <password>          (saves token)
  whoami
  users     <term>
  directory                                       (everyone you can reach)
  all-users                                       (admins only)
  set-avatar <file|->
  avatar     [-o file] <user>
  rm-avatar

Connections:
  connect <user> | accept <user> | unsend <user> | decline <user>
  disconnect <user> | block <user> | unblock <user>
  connections | requests | blocked

Conversations:
  start <peer> | load <peer> | drop <peer> | clear <peer>
  send    [-private] [-ttl hours] [-file path] <peer> [text...]
  edit    [-file path] <peer> <message-id> [text...]
  rm      <peer> <message-id>
  search  <peer> <query...>
  recent  <peer>
  seen    <peer>
  expire  [-in duration | -clear] <peer>
  render  [-o file] <peer>
  watch   <peer>                                  (streams until interrupted)
`)
	os.Exit(2)
}

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses global flags, dials the server and dispatches the subcommand.
func main() {
	addr := flag.String("addr", "localhost:8443", "server addr")
	caPath := flag.String("cacert", "", "CA cert (PEM)")
	skipVerify := flag.Bool("insecure", false, "skip cert verify (dev)")
	plaintext := flag.Bool("plaintext", false, "no TLS (dev server without certificates)")
	timeout := flag.Duration("timeout", 30*time.Second, "per-command timeout (ignored by watch)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]
	if cmd == "version" {
		fmt.Printf("chatctl %s (%s)\n", version, buildDate)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cmd != "watch" {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	conn, err := dial(ctx, *addr, *caPath, *skipVerify, *plaintext)
	if err != nil {
		fail(err)
	}
	defer conn.Close()

	var token string
	if !public[cmd] {
		if token, err = loadToken(); err != nil {
			fail(err)
		}
	}
	if err := run(ctx, api.NewClient(conn, token), os.Stdout, cmd, args); err != nil {
		if errors.Is(err, errUsage) {
			usage()
		}
		fail(err)
	}
}

func fail(err error) {
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
