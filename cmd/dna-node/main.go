// Command dna-node runs a storage-plane node: the chunked storage layer
// (C3) and every component built on it (C4-C10), wired around a single
// dht.Transport. A real Kademlia transport is out of scope for this
// module (spec.md §1); this binary talks to an in-process transport
// standing in for it, the same role internal/dht.InMemory plays in every
// component's own tests.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"dnamessenger.dev/core/internal/cryptosuite"
	"dnamessenger.dev/core/internal/dht"
	"dnamessenger.dev/core/internal/engine"
	"dnamessenger.dev/core/internal/identity"
)

// identityPassphraseEnv names the environment variable this binary reads
// the keystore passphrase from. It is never accepted as a flag so it
// never ends up in a process listing or shell history.
const identityPassphraseEnv = "DNA_NODE_IDENTITY_PASSPHRASE"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	defaults := engine.DefaultConfig()
	cfg := defaults

	fs := flag.NewFlagSet("dna-node", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.DataDir, "datadir", defaults.DataDir, "node data directory")
	fs.StringVar(&cfg.LogLevel, "log-level", defaults.LogLevel, "log level: debug|info|warn|error")
	fs.BoolVar(&cfg.Bootstrap, "bootstrap", defaults.Bootstrap, "run as a bootstrap node (enables on-disk persistence and republish)")
	fs.IntVar(&cfg.PublishDepth, "publish-queue-depth", defaults.PublishDepth, "bounded publish queue depth")
	fs.StringVar(&cfg.CleanupPeriod, "cleanup-period", defaults.CleanupPeriod, "bootstrap expiry cleanup interval, e.g. 10m")
	identityFile := fs.String("identity-file", "", "path to this node's identity keystore (default: <datadir>/identity.json)")
	dryRun := fs.Bool("dry-run", false, "print effective config and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if err := engine.ValidateConfig(cfg); err != nil {
		_, _ = fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 2
	}
	if cfg.Bootstrap {
		if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
			_, _ = fmt.Fprintf(stderr, "datadir create failed: %v\n", err)
			return 2
		}
	}

	if err := printConfig(stdout, cfg); err != nil {
		_, _ = fmt.Fprintf(stderr, "config encode failed: %v\n", err)
		return 1
	}
	if *dryRun {
		return 0
	}

	suite := cryptosuite.SoftwareSuite{}
	keystorePath := *identityFile
	if keystorePath == "" {
		keystorePath = filepath.Join(cfg.DataDir, "identity.json")
	}
	if err := os.MkdirAll(filepath.Dir(keystorePath), 0o750); err != nil {
		_, _ = fmt.Fprintf(stderr, "identity directory create failed: %v\n", err)
		return 2
	}
	self, err := identity.LoadOrGenerate(keystorePath, os.Getenv(identityPassphraseEnv), func() (identity.Keypair, error) {
		return identity.Generate(suite)
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "identity load failed: %v\n", err)
		return 2
	}
	_, _ = fmt.Fprintf(stdout, "fingerprint: %s\n", self.Fingerprint)

	transport := dht.NewInMemory()
	rt, err := engine.Open(cfg, transport, suite)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "engine open failed: %v\n", err)
		return 2
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, _ = fmt.Fprintln(stdout, "dna-node running")
	if err := rt.Run(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "run failed: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, "dna-node stopped")
	return 0
}

func printConfig(w io.Writer, cfg engine.Config) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}
