// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

// chartupdater appends the newest points to the chartdata plot files, from a
// node's RPC server and from the GitHub and CoinGecko APIs. It runs once, or
// every --interval until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/explorercharts/chartdata/updater"
)

// Version is the version of the chartupdater.
func Version() string {
	return "1.0.0-pre"
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := _main(ctx); err != nil {
		if logRotator != nil {
			log.Error(err)
		}
		os.Exit(1)
	}
}

func _main(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load chartupdater config: %v\n", err)
		return err
	}
	defer logRotator.Close()

	log.Infof("chartupdater version %s", Version())

	if err = os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("unable to create data directory: %w", err)
	}

	names, _ := cfg.updaters()

	var node *updater.RPCNode
	if needsNode(names) {
		nodeCfg := &updater.NodeConfig{
			Host:       cfg.NodeServ,
			User:       cfg.NodeUser,
			Pass:       cfg.NodePass,
			DisableTLS: !cfg.NodeEnableTLS,
		}
		if cfg.NodeEnableTLS && cfg.NodeCert != "" {
			if nodeCfg.Cert, err = os.ReadFile(cfg.NodeCert); err != nil {
				return fmt.Errorf("unable to read the node certificate: %w", err)
			}
		}
		node, _, err = updater.ConnectNode(ctx, nodeCfg)
		if err != nil {
			return err
		}
		defer node.Shutdown()
	}

	updaters := make([]updater.Updater, 0, len(names))
	for _, name := range names {
		switch name {
		case updateNetwork:
			updaters = append(updaters, updater.NewNetworkUpdater(node, cfg.DataDir))
		case updateMasternodes:
			updaters = append(updaters, updater.NewMasternodeUpdater(node, cfg.DataDir, cfg.TestNet))
		case updateGithub:
			gh := updater.NewGithubUpdater(cfg.DataDir)
			gh.Repo = cfg.GithubRepo
			gh.CoinID = cfg.CoinID
			gh.Token = cfg.GithubToken
			updaters = append(updaters, gh)
		}
	}

	if cfg.Interval == 0 {
		err = updater.RunOnce(ctx, updaters...)
		if errors.Is(err, context.Canceled) {
			log.Info("Interrupted.")
			return nil
		}
		return err
	}

	log.Infof("Updating %v every %v.", names, cfg.Interval)
	var wg sync.WaitGroup
	wg.Add(1)
	go updater.Run(ctx, &wg, cfg.Interval, updaters...)
	wg.Wait()
	log.Info("Bye!")
	return nil
}
