// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package updater

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/explorercharts/chartdata/dataset"
)

// Last proof-of-work blocks. Blocks up to these heights pay no masternode.
const (
	MainnetLastPoWBlock = 259200
	TestnetLastPoWBlock = 200
)

// DefaultSaveInterval is the number of blocks between intermediate saves of
// the masternode plot file.
const DefaultSaveInterval = 100000

// MasternodeData is the masternode payments plot file. Point i is block i.
type MasternodeData struct {
	LastBlockHash string  `json:"lastBlockHash"`
	LastPaid      string  `json:"lastMNPaid"`
	TimeAxis      []int64 `json:"time_axis"`
	// DoublePayments counts the blocks that paid the same masternode as the
	// block before, up to each block.
	DoublePayments []int64 `json:"double_mn_payments"`
}

// MasternodeUpdater appends a point per block to the masternode payments
// plot file.
type MasternodeUpdater struct {
	Node         NodeClient
	File         string
	LastPoWBlock int64
	SaveInterval int64
}

// NewMasternodeUpdater creates a MasternodeUpdater for the plot file in dir.
func NewMasternodeUpdater(node NodeClient, dir string, testnet bool) *MasternodeUpdater {
	lastPoW := int64(MainnetLastPoWBlock)
	if testnet {
		lastPoW = TestnetLastPoWBlock
	}
	return &MasternodeUpdater{
		Node:         node,
		File:         filepath.Join(dir, dataset.MasternodeDefinition().File),
		LastPoWBlock: lastPoW,
		SaveInterval: DefaultSaveInterval,
	}
}

// Name satisfies the Updater interface.
func (u *MasternodeUpdater) Name() string {
	return "masternodes"
}

// paidMasternode returns the address paid by the last output of the coinstake
// transaction of a block, and the block time.
func (u *MasternodeUpdater) paidMasternode(ctx context.Context, hash string) (string, int64, error) {
	block, err := u.Node.GetBlock(ctx, hash)
	if err != nil {
		return "", 0, err
	}
	if len(block.Tx) < 2 {
		return "", 0, fmt.Errorf("block %s has no coinstake transaction", hash)
	}
	coinstake, err := u.Node.GetRawTransaction(ctx, block.Tx[1])
	if err != nil {
		return "", 0, err
	}
	if len(coinstake.Vout) == 0 {
		return "", 0, fmt.Errorf("coinstake %s has no outputs", coinstake.Txid)
	}
	addrs := coinstake.Vout[len(coinstake.Vout)-1].ScriptPubKey.Addresses
	if len(addrs) == 0 {
		return "", 0, fmt.Errorf("coinstake %s pays no address", coinstake.Txid)
	}
	return addrs[0], block.Time, nil
}

// Update appends a point for every block since the last update and writes the
// file. The number of points added is returned.
func (u *MasternodeUpdater) Update(ctx context.Context) (int, error) {
	data := new(MasternodeData)
	extra, found, err := readPlotFile(u.File, data)
	if err != nil {
		return 0, err
	}
	if !found || len(data.DoublePayments) == 0 {
		log.Infof("No masternode plot file at %s. Starting from block 0.", u.File)
		data = &MasternodeData{
			TimeAxis:       []int64{0},
			DoublePayments: []int64{0},
		}
	}
	if len(data.TimeAxis) != len(data.DoublePayments) {
		return 0, fmt.Errorf("%s: %w", u.File, dataset.ErrLengthMismatch)
	}

	blockCount, err := u.Node.GetBlockCount(ctx)
	if err != nil {
		return 0, err
	}

	height := int64(len(data.DoublePayments) - 1)
	doubles := data.DoublePayments[height]
	var added int
	for height < blockCount {
		if err = ctx.Err(); err != nil {
			break
		}
		height++
		added++
		if height <= u.LastPoWBlock {
			data.TimeAxis = append(data.TimeAxis, 0)
			data.DoublePayments = append(data.DoublePayments, 0)
			data.LastBlockHash = ""
			continue
		}

		var hash string
		hash, err = u.Node.GetBlockHash(ctx, height)
		if err != nil {
			// The point is not added.
			added--
			break
		}
		log.Tracef("Getting masternode paid at block %d...", height)
		paid, blockTime, perr := u.paidMasternode(ctx, hash)
		if perr != nil {
			if err = ctx.Err(); err != nil {
				added--
				break
			}
			log.Warnf("Block %d: %v", height, perr)
		}
		if paid != "" {
			if paid == data.LastPaid {
				doubles++
			} else {
				data.LastPaid = paid
			}
		}
		data.TimeAxis = append(data.TimeAxis, blockTime)
		data.DoublePayments = append(data.DoublePayments, doubles)
		data.LastBlockHash = hash

		if u.SaveInterval > 0 && height%u.SaveInterval == 0 {
			log.Infof("Saving masternode data at block %d...", height)
			if err = writePlotFile(u.File, data, extra); err != nil {
				return added, err
			}
		}
	}
	if err != nil {
		log.Errorf("Masternode update stopped at block %d: %v", height, err)
	}

	if werr := writePlotFile(u.File, data, extra); werr != nil {
		return added, werr
	}
	return added, err
}
