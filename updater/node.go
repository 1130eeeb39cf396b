// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package updater

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/rpcclient"
)

// Block is the verbose getblock result fields used by the updaters.
type Block struct {
	Hash       string   `json:"hash"`
	Height     int64    `json:"height"`
	Time       int64    `json:"time"`
	Difficulty float64  `json:"difficulty"`
	Size       int64    `json:"size"`
	Tx         []string `json:"tx"`
}

// ShieldPoolValue is the shielded pool value of a block header.
type ShieldPoolValue struct {
	ChainValue float64 `json:"chainValue"`
	ValueDelta float64 `json:"valueDelta"`
}

// BlockHeader is the verbose getblockheader result fields used by the
// updaters.
type BlockHeader struct {
	Hash            string          `json:"hash"`
	Height          int64           `json:"height"`
	Time            int64           `json:"time"`
	ShieldPoolValue ShieldPoolValue `json:"shield_pool_value"`
}

// BlockIndexStats is the getblockindexstats result for a span of blocks.
type BlockIndexStats struct {
	TxCountAll int64   `json:"txcount_all"`
	TotalFee   float64 `json:"ttlfee_all"`
	FeePerKB   float64 `json:"feeperkb"`
}

// ScriptPubKey is the decoded output script of a transaction output.
type ScriptPubKey struct {
	Type      string   `json:"type"`
	Addresses []string `json:"addresses"`
}

// Vout is a transaction output.
type Vout struct {
	Value        float64      `json:"value"`
	N            uint32       `json:"n"`
	ScriptPubKey ScriptPubKey `json:"scriptPubKey"`
}

// RawTransaction is the verbose getrawtransaction result fields used by the
// updaters.
type RawTransaction struct {
	Txid string `json:"txid"`
	Vout []Vout `json:"vout"`
}

// NodeClient is the node RPC used to collect plot data.
type NodeClient interface {
	GetBlockCount(ctx context.Context) (int64, error)
	GetBlockHash(ctx context.Context, height int64) (string, error)
	GetBlock(ctx context.Context, hash string) (*Block, error)
	GetBlockHeader(ctx context.Context, hash string) (*BlockHeader, error)
	GetBlockIndexStats(ctx context.Context, height, count int64) (*BlockIndexStats, error)
	GetRawTransaction(ctx context.Context, txid string) (*RawTransaction, error)
}

// NodeConfig is the connection configuration of a node's JSON-RPC server.
type NodeConfig struct {
	Host       string
	User       string
	Pass       string
	DisableTLS bool
	Cert       []byte
}

// RPCNode is a NodeClient for a node's JSON-RPC server over HTTP POST.
type RPCNode struct {
	client *rpcclient.Client
}

// Ensure RPCNode satisfies NodeClient.
var _ NodeClient = (*RPCNode)(nil)

// ConnectNode creates an RPCNode and checks the connection with a
// getblockcount request.
func ConnectNode(ctx context.Context, cfg *NodeConfig) (*RPCNode, int64, error) {
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   cfg.DisableTLS,
		Certificates: cfg.Cert,
	}, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to start node RPC client: %w", err)
	}
	node := &RPCNode{client: client}
	height, err := node.GetBlockCount(ctx)
	if err != nil {
		client.Shutdown()
		return nil, 0, fmt.Errorf("unable to get block count from %s: %w", cfg.Host, err)
	}
	log.Infof("Connected to node at %s, height %d.", cfg.Host, height)
	return node, height, nil
}

// Shutdown stops the RPC client.
func (n *RPCNode) Shutdown() {
	n.client.Shutdown()
	n.client.WaitForShutdown()
}

// call performs a raw JSON-RPC request and decodes the result into result.
// The node's result types are not the ones of the rpcclient's chain, so every
// request is made raw.
func (n *RPCNode) call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rawParams := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		b, err := json.Marshal(p)
		if err != nil {
			return err
		}
		rawParams = append(rawParams, b)
	}
	log.Tracef("RPC %s %v", method, params)
	resp, err := n.client.RawRequest(method, rawParams)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if err = json.Unmarshal(resp, result); err != nil {
		return fmt.Errorf("%s: decoding result: %w", method, err)
	}
	return nil
}

// GetBlockCount returns the height of the best block.
func (n *RPCNode) GetBlockCount(ctx context.Context) (int64, error) {
	var count int64
	err := n.call(ctx, &count, "getblockcount")
	return count, err
}

// GetBlockHash returns the hash of the main chain block at height.
func (n *RPCNode) GetBlockHash(ctx context.Context, height int64) (string, error) {
	var hash string
	err := n.call(ctx, &hash, "getblockhash", height)
	return hash, err
}

// GetBlock returns the verbose block.
func (n *RPCNode) GetBlock(ctx context.Context, hash string) (*Block, error) {
	block := new(Block)
	if err := n.call(ctx, block, "getblock", hash, true); err != nil {
		return nil, err
	}
	return block, nil
}

// GetBlockHeader returns the verbose block header.
func (n *RPCNode) GetBlockHeader(ctx context.Context, hash string) (*BlockHeader, error) {
	header := new(BlockHeader)
	if err := n.call(ctx, header, "getblockheader", hash, true); err != nil {
		return nil, err
	}
	return header, nil
}

// GetBlockIndexStats returns the transaction and fee totals of count blocks
// starting at height.
func (n *RPCNode) GetBlockIndexStats(ctx context.Context, height, count int64) (*BlockIndexStats, error) {
	stats := new(BlockIndexStats)
	if err := n.call(ctx, stats, "getblockindexstats", height, count); err != nil {
		return nil, err
	}
	return stats, nil
}

// GetRawTransaction returns the verbose transaction.
func (n *RPCNode) GetRawTransaction(ctx context.Context, txid string) (*RawTransaction, error) {
	tx := new(RawTransaction)
	if err := n.call(ctx, tx, "getrawtransaction", txid, true); err != nil {
		return nil, err
	}
	return tx, nil
}
