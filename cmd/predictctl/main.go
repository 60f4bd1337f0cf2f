// Command predictctl is an operator and bettor CLI for the prediction market
// API. Mutating commands are signed with the key given by -key, PREDICT_KEY
// or an encrypted key file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/alanyoungcy/predictmarket/internal/client"
	"github.com/alanyoungcy/predictmarket/internal/crypto"
)

type globals struct {
	url         string
	apiKey      string
	key         string
	keyFile     string
	keyPassword string
	timeout     time.Duration
}

// env is what every command runs against.
type env struct {
	c      *client.Client
	signer *crypto.Signer
	g      globals
	out    io.Writer
}

type command struct {
	usage string
	run   func(ctx context.Context, e *env, args []string) error
}

var errUsage = errors.New("bad usage")

func main() {
	_ = godotenv.Load()

	var g globals
	fs := flag.NewFlagSet("predictctl", flag.ExitOnError)
	fs.StringVar(&g.url, "url", envOr("PREDICT_URL", "http://localhost:8000"), "market API base URL")
	fs.StringVar(&g.apiKey, "api-key", os.Getenv("PREDICT_API_KEY"), "API bearer token")
	fs.StringVar(&g.key, "key", os.Getenv("PREDICT_KEY"), "hex private key used to sign requests")
	fs.StringVar(&g.keyFile, "key-file", os.Getenv("PREDICT_KEY_FILE"), "encrypted private key file")
	fs.StringVar(&g.keyPassword, "key-password", os.Getenv("PREDICT_KEY_PASSWORD"), "password for -key-file")
	fs.DurationVar(&g.timeout, "timeout", 30*time.Second, "per-command timeout")
	fs.Usage = func() { usage(fs) }
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}
	name, args := fs.Arg(0), fs.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		fs.Usage()
		os.Exit(2)
	}

	e, err := newEnv(g, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := cmd.run(ctx, e, args); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "usage: predictctl %s %s\n", name, cmd.usage)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newEnv(g globals, out io.Writer) (*env, error) {
	e := &env{g: g, out: out}
	if g.key != "" || g.keyFile != "" {
		s, err := crypto.LoadSigner(crypto.KeyConfig{Hex: g.key, File: g.keyFile, Password: g.keyPassword})
		if err != nil {
			return nil, fmt.Errorf("load key: %w", err)
		}
		e.signer = s
	}
	var opts []client.Option
	if g.apiKey != "" {
		opts = append(opts, client.WithAPIKey(g.apiKey))
	}
	e.c = client.New(g.url, e.signer, opts...)
	return e, nil
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintf(w, "usage: predictctl [flags] <command> [args]\n\ncommands:\n")
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(w, "  %-16s %s\n", n, commands[n].usage)
	}
	fmt.Fprintf(w, "\nflags:\n")
	fs.PrintDefaults()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
