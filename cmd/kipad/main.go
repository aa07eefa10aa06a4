// Command kipad runs a single KIPA daemon: it listens for inter-node
// requests on the global transport and for CLI requests on the local
// transport, maintaining a bounded neighbour store and answering
// Search/Connect/Query/ListNeighbours/Verify requests.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	logging "github.com/ipfs/go-log/v2"
	"github.com/urfave/cli/v2"

	"github.com/pangea-net/kipa/internal/daemon"
	"github.com/pangea-net/kipa/pkg/api"
	"github.com/pangea-net/kipa/pkg/config"
	"github.com/pangea-net/kipa/pkg/netutil"
	"github.com/pangea-net/kipa/pkg/pgp"
)

var logger = logging.Logger("kipa/cmd/kipad")

func main() {
	app := &cli.App{
		Name:  "kipad",
		Usage: "run a KIPA key-location daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "key-id", Required: true, Usage: "this node's 8-character key id"},
			&cli.StringFlag{Name: "public-key", Required: true, Usage: "path to this node's OpenPGP public key"},
			&cli.StringFlag{Name: "secret-key", Required: true, Usage: "path to this node's OpenPGP secret key"},
			&cli.StringFlag{Name: "secret-passphrase-file", Usage: "path to a file holding the secret key's passphrase"},
			&cli.StringFlag{Name: "global-addr", Usage: "address to listen on for inter-node requests (default: auto-detected interface, port 10842)"},
			&cli.StringFlag{Name: "interface", Usage: "network interface to bind the global address to, if --global-addr is not set"},
			&cli.StringFlag{Name: "local-socket", Usage: "unix socket path for local CLI requests"},
			&cli.StringFlag{Name: "connect-address", Usage: "address of a seed node to bootstrap through at startup"},
			&cli.StringFlag{Name: "connect-key-id", Usage: "key id of the seed node named by --connect-address"},
			&cli.BoolFlag{Name: "fake-crypto", Usage: "use an unsigned, unencrypted fake envelope instead of OpenPGP (testing only)"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn, or error"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logging.SetAllLoggers(logging.LevelInfo)
	if lvl, err := logging.LevelFromString(c.String("log-level")); err == nil {
		logging.SetAllLoggers(lvl)
	}

	keyID := c.String("key-id")
	publicKeyData, err := os.ReadFile(c.String("public-key"))
	if err != nil {
		return api.Wrap(api.KindConfiguration, "failed to read public key", err)
	}
	secretKeyData, err := os.ReadFile(c.String("secret-key"))
	if err != nil {
		return api.Wrap(api.KindConfiguration, "failed to read secret key", err)
	}

	publicKey, err := api.NewKey(keyID, publicKeyData)
	if err != nil {
		return err
	}
	secretKey := api.NewSecretKey(publicKey, secretKeyData)

	if passphrasePath := c.String("secret-passphrase-file"); passphrasePath != "" {
		if _, err := pgp.NewFileSecretLoader(passphrasePath).Load(); err != nil {
			return err
		}
	}

	manager := config.NewConfigManager(keyID)
	cfg, err := manager.Load()
	if err != nil {
		return err
	}

	globalAddr := c.String("global-addr")
	if globalAddr == "" {
		params := netutil.LocalAddressParams{Port: netutil.DefaultPort, InterfaceName: c.String("interface")}
		addr, err := params.CreateAddress()
		if err != nil {
			return err
		}
		globalAddr = addr.String()
	}

	localSocketPath := c.String("local-socket")
	if localSocketPath == "" {
		localSocketPath = cfg.LocalSocketPath
	}
	if localSocketPath == "" {
		localSocketPath = "/tmp/kipa-" + keyID + ".sock"
	}

	localAddr, err := api.ParseAddress(globalAddr)
	if err != nil {
		return err
	}
	localNode := api.NewNode(localAddr, publicKey)

	var crypto pgp.SigningEncrypter
	if c.Bool("fake-crypto") {
		crypto = pgp.NewFakeSigningEncrypter()
	} else {
		crypto = pgp.NewOpenPGPHandler()
	}

	d, err := daemon.New(daemon.Options{
		LocalNode:            localNode,
		LocalSecret:          secretKey,
		Crypto:               crypto,
		GlobalBindAddr:       globalAddr,
		LocalSocketPath:      localSocketPath,
		NeighbourCapacity:    cfg.NeighbourCapacity,
		ReaperFrequency:      0,
		ReaperNumRetries:     0,
		ReaperRetryFrequency: 0,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	connectAddress := c.String("connect-address")
	connectKeyID := c.String("connect-key-id")
	if connectAddress != "" || connectKeyID != "" {
		if connectAddress == "" || connectKeyID == "" {
			return api.ConfigurationError("--connect-address and --connect-key-id must be given together")
		}
		seedAddr, err := api.ParseAddress(connectAddress)
		if err != nil {
			return api.Wrap(api.KindConfiguration, "bad --connect-address", err)
		}
		seedKey, err := api.NewKey(connectKeyID, nil)
		if err != nil {
			return api.Wrap(api.KindConfiguration, "bad --connect-key-id", err)
		}
		seed := api.NewNode(seedAddr, seedKey)
		// A bootstrap failure at daemon start is fatal (spec.md §6):
		// without at least one reachable neighbour the node cannot
		// be found, so there is nothing useful left to run for.
		if err := d.Connect(ctx, seed); err != nil {
			return api.Wrap(api.KindConfiguration, "bootstrap connect failed", err)
		}
		manager.AddBootstrapAddress(connectAddress)
		if err := manager.Save(manager.Current()); err != nil {
			logger.Warnw("failed to persist config", "error", err)
		}
		logger.Infow("bootstrapped via seed", "addr", connectAddress, "key_id", connectKeyID)
	}

	logger.Infow("kipad running", "global_addr", d.GlobalAddr(), "local_socket", localSocketPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Infow("shutting down")
	return nil
}
