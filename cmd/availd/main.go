// Copyright (c) 2019 Perlin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"

	"github.com/perlin-network/avail/api"
	"github.com/perlin-network/avail/log"
	"github.com/perlin-network/avail/node"
	"github.com/perlin-network/avail/sys"
	"github.com/perlin-network/noise/edwards25519"
	"github.com/perlin-network/noise/skademlia"
	"gopkg.in/urfave/cli.v1"
)

func main() {
	app := cli.NewApp()

	app.Name = "availd"
	app.Author = "Perlin Network"
	app.Email = "support@perlin.net"
	app.Usage = "a validator-side availability distribution daemon"

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "host",
			Value: "127.0.0.1",
			Usage: "Listen for peers on host address `HOST`.",
		},
		cli.UintFlag{
			Name:  "port, p",
			Value: 3000,
			Usage: "Listen for peers on port `PORT`.",
		},
		cli.UintFlag{
			Name:  "api",
			Usage: "Host a local HTTP API at port `API_PORT`.",
		},
		cli.StringFlag{
			Name:  "database, db",
			Usage: "Load/initialize the availability store from `DB_PATH`. Runs in memory when unset.",
		},
		cli.StringFlag{
			Name:  "relay",
			Value: "http://127.0.0.1:9933",
			Usage: "Query the relay-chain runtime over JSON-RPC at `RELAY_RPC`.",
		},
		cli.StringFlag{
			Name:  "privkey, sk",
			Value: "random",
			Usage: "Set the node's private key to be `PRIVATE_KEY`. Leave `PRIVATE_KEY` = 'random' if you want to randomly generate one.",
		},
		cli.StringSliceFlag{
			Name:  "nodes, peers, n",
			Usage: "Bootstrap to peers whose addresses are formatted as [host]:[port] from `PEER_NODES`.",
		},
	}

	app.Action = func(c *cli.Context) error {
		keys, err := loadKeys(c.String("privkey"))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load keys.")
		}

		n, err := node.New(keys, node.Options{
			ListenAddr:     fmt.Sprintf("%s:%d", c.String("host"), c.Uint("port")),
			DatabasePath:   c.String("db"),
			RelayEndpoint:  c.String("relay"),
			BootstrapPeers: c.StringSlice("peers"),
		})

		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize node.")
		}

		if err := n.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start node.")
		}

		if port := c.Uint("api"); port > 0 {
			go func() {
				addr := fmt.Sprintf("%s:%d", c.String("host"), port)

				if err := api.Run(n.Protocol, n.Metrics, api.Options{ListenAddr: addr}); err != nil {
					log.Error().Err(err).Msg("API stopped.")
				}
			}()
		}

		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt)
		<-interrupt

		n.Stop()

		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("Failed to parse configuration/command-line arguments.")
	}
}

func loadKeys(privateKey string) (*skademlia.Keypair, error) {
	if privateKey == "random" || privateKey == "" {
		return skademlia.NewKeys(sys.KademliaC1, sys.KademliaC2)
	}

	raw, err := hex.DecodeString(privateKey)
	if err != nil {
		return nil, err
	}

	var priv edwards25519.PrivateKey
	copy(priv[:], raw)

	return skademlia.LoadKeys(priv, sys.KademliaC1, sys.KademliaC2)
}
