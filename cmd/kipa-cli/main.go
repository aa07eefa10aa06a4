// Command kipa-cli talks to a running kipad over its local control
// socket: searching for a key, connecting through a seed node, and
// listing the current neighbour set.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pangea-net/kipa/pkg/api"
	"github.com/pangea-net/kipa/pkg/transport"
)

func main() {
	app := &cli.App{
		Name:  "kipa-cli",
		Usage: "control a running kipad daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "socket", Value: "/tmp/kipa.sock", Usage: "local daemon control socket"},
		},
		Commands: []*cli.Command{
			searchCommand,
			connectCommand,
			listNeighboursCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var searchCommand = &cli.Command{
	Name:      "search",
	Usage:     "search the overlay for the node holding a given key id",
	ArgsUsage: "<key-id>",
	Action: func(c *cli.Context) error {
		keyID := c.Args().First()
		if keyID == "" {
			return cli.Exit("search requires a key id argument", 1)
		}
		key, err := api.NewKey(keyID, []byte(keyID))
		if err != nil {
			return err
		}
		resp, err := transport.SendLocal(c.String("socket"), api.RequestPayload{Kind: api.RequestSearch, SearchKey: key})
		if err != nil {
			return err
		}
		if !resp.SearchFound {
			fmt.Println("not found")
			return nil
		}
		fmt.Println(resp.SearchResult.String())
		return nil
	},
}

var connectCommand = &cli.Command{
	Name:      "connect",
	Usage:     "connect through a seed node, address:port and its key id",
	ArgsUsage: "<address> <key-id>",
	Action: func(c *cli.Context) error {
		if c.NArg() < 2 {
			return cli.Exit("connect requires an address and a key id argument", 1)
		}
		addrStr, keyID := c.Args().Get(0), c.Args().Get(1)
		addr, err := api.ParseAddress(addrStr)
		if err != nil {
			return err
		}
		key, err := api.NewKey(keyID, []byte(keyID))
		if err != nil {
			return err
		}
		seed := api.NewNode(addr, key)
		_, err = transport.SendLocal(c.String("socket"), api.RequestPayload{Kind: api.RequestConnect, ConnectSeed: seed})
		if err != nil {
			return err
		}
		fmt.Println("connected")
		return nil
	},
}

var listNeighboursCommand = &cli.Command{
	Name:  "list-neighbours",
	Usage: "list the daemon's current neighbour set",
	Action: func(c *cli.Context) error {
		resp, err := transport.SendLocal(c.String("socket"), api.RequestPayload{Kind: api.RequestListNeighbours})
		if err != nil {
			return err
		}
		for _, n := range resp.ListNeighboursResult {
			fmt.Println(n.String())
		}
		return nil
	},
}
