// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/explorercharts/chartdata/dataset"
	"github.com/explorercharts/chartdata/sampler"
)

const (
	// DefaultBlockInterval is the number of blocks between two points of the
	// network and supply plot files.
	DefaultBlockInterval = 100

	// reorgDepth points are dropped when the last stored block is no longer
	// in the main chain.
	reorgDepth = 3
	// Reorgs are only checked once a file has more than reorgMinPoints
	// points.
	reorgMinPoints = 6
)

// NetworkData is the network plot file.
type NetworkData struct {
	BlocksAxis []int64   `json:"blocks_axis"`
	TimeAxis   []int64   `json:"time_axis"`
	Difficulty []float64 `json:"difficulty"`
	Blocktime  []float64 `json:"blocktime"`
	Blocksize  []int64   `json:"blocksize"`
	Txs        []int64   `json:"txs"`
	FeesTotal  []float64 `json:"fees_ttl"`
	FeesPerKB  []float64 `json:"fees_perKb"`
}

func (d *NetworkData) truncate(n int) {
	d.BlocksAxis = truncate(d.BlocksAxis, n)
	d.TimeAxis = truncate(d.TimeAxis, n)
	d.Difficulty = truncate(d.Difficulty, n)
	d.Blocktime = truncate(d.Blocktime, n)
	d.Blocksize = truncate(d.Blocksize, n)
	d.Txs = truncate(d.Txs, n)
	d.FeesTotal = truncate(d.FeesTotal, n)
	d.FeesPerKB = truncate(d.FeesPerKB, n)
}

// SupplyData is the supply plot file. Other supply columns in the file are
// kept as they are.
type SupplyData struct {
	BlocksAxis    []int64   `json:"blocks_axis"`
	TimeAxis      []int64   `json:"time_axis"`
	ShieldSupply  []float64 `json:"shield_supply"`
	LastBlockHash string    `json:"lastBlockHash"`
}

func (d *SupplyData) truncate(n int) {
	d.BlocksAxis = truncate(d.BlocksAxis, n)
	d.TimeAxis = truncate(d.TimeAxis, n)
	d.ShieldSupply = truncate(d.ShieldSupply, n)
}

// The first point of new files is at height 0.
func newNetworkData() *NetworkData {
	return &NetworkData{
		BlocksAxis: []int64{0},
		TimeAxis:   []int64{0},
		Difficulty: []float64{0},
		Blocktime:  []float64{0},
		Blocksize:  []int64{0},
		Txs:        []int64{0},
		FeesTotal:  []float64{0},
		FeesPerKB:  []float64{0},
	}
}

func newSupplyData() *SupplyData {
	return &SupplyData{
		BlocksAxis:   []int64{0},
		TimeAxis:     []int64{0},
		ShieldSupply: []float64{0},
	}
}

// NetworkUpdater appends a point to the network and supply plot files for
// every Interval blocks mined since the last update.
type NetworkUpdater struct {
	Node        NodeClient
	NetworkFile string
	SupplyFile  string
	Interval    int64
}

// NewNetworkUpdater creates a NetworkUpdater for the plot files in dir.
func NewNetworkUpdater(node NodeClient, dir string) *NetworkUpdater {
	return &NetworkUpdater{
		Node:        node,
		NetworkFile: filepath.Join(dir, dataset.NetworkDefinition().File),
		SupplyFile:  filepath.Join(dir, dataset.SupplyDefinition().File),
		Interval:    DefaultBlockInterval,
	}
}

// Name satisfies the Updater interface.
func (u *NetworkUpdater) Name() string {
	return "network"
}

func (u *NetworkUpdater) load() (*NetworkData, map[string]json.RawMessage, *SupplyData, map[string]json.RawMessage, error) {
	network, supply := new(NetworkData), new(SupplyData)
	netExtra, netFound, err := readPlotFile(u.NetworkFile, network)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	supExtra, supFound, err := readPlotFile(u.SupplyFile, supply)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if !netFound || !supFound {
		log.Infof("No network and supply plot files in %s. Starting from block 0.",
			filepath.Dir(u.NetworkFile))
		network, supply = newNetworkData(), newSupplyData()
		netExtra, supExtra = nil, nil
	}
	if len(supply.BlocksAxis) == 0 || len(network.TimeAxis) == 0 {
		return nil, nil, nil, nil, fmt.Errorf("%s has no points", u.SupplyFile)
	}
	return network, netExtra, supply, supExtra, nil
}

// checkReorg drops the newest points when the last stored block hash is no
// longer the main chain block at that height.
func (u *NetworkUpdater) checkReorg(ctx context.Context, network *NetworkData, supply *SupplyData) error {
	if len(supply.BlocksAxis) <= reorgMinPoints {
		return nil
	}
	last := supply.BlocksAxis[len(supply.BlocksAxis)-1]
	hash, err := u.Node.GetBlockHash(ctx, last)
	if err != nil {
		return err
	}
	if hash == supply.LastBlockHash {
		return nil
	}
	log.Warnf("Block %d is now %s, not %s. Dropping the last %d points.",
		last, hash, supply.LastBlockHash, reorgDepth)
	supply.truncate(reorgDepth)
	network.truncate(reorgDepth)
	// The hash is only replaced when a point is added, so keep the new last
	// hash in case no block is added in this run.
	last = supply.BlocksAxis[len(supply.BlocksAxis)-1]
	supply.LastBlockHash, err = u.Node.GetBlockHash(ctx, last)
	return err
}

// Update appends the new points and writes both files. The number of points
// added is returned.
func (u *NetworkUpdater) Update(ctx context.Context) (int, error) {
	if u.Interval <= 0 {
		u.Interval = DefaultBlockInterval
	}
	network, netExtra, supply, supExtra, err := u.load()
	if err != nil {
		return 0, err
	}
	if err = u.checkReorg(ctx, network, supply); err != nil {
		return 0, fmt.Errorf("checking for a reorg: %w", err)
	}
	if len(network.TimeAxis) == 0 {
		return 0, fmt.Errorf("%s has no points", u.NetworkFile)
	}

	blockCount, err := u.Node.GetBlockCount(ctx)
	if err != nil {
		return 0, err
	}

	var added int
	for {
		last := supply.BlocksAxis[len(supply.BlocksAxis)-1]
		height := last + u.Interval
		if height > blockCount {
			break
		}
		if err = u.addPoint(ctx, height, network, supply); err != nil {
			// Keep what was collected so far.
			log.Errorf("Unable to add the point at block %d: %v", height, err)
			break
		}
		added++
	}

	if added == 0 && err == nil {
		log.Debugf("No new network points. Best block %d.", blockCount)
	}
	if werr := writePlotFile(u.SupplyFile, supply, supExtra); werr != nil {
		return added, werr
	}
	if werr := writePlotFile(u.NetworkFile, network, netExtra); werr != nil {
		return added, werr
	}
	return added, err
}

// addPoint collects the point for the block at height. Nothing is appended
// unless every request succeeds.
func (u *NetworkUpdater) addPoint(ctx context.Context, height int64, network *NetworkData, supply *SupplyData) error {
	hash, err := u.Node.GetBlockHash(ctx, height)
	if err != nil {
		return err
	}
	log.Debugf("Getting block %d...", height)
	block, err := u.Node.GetBlock(ctx, hash)
	if err != nil {
		return err
	}
	header, err := u.Node.GetBlockHeader(ctx, hash)
	if err != nil {
		return err
	}
	// Stats over the blocks of the interval ending at height.
	stats, err := u.Node.GetBlockIndexStats(ctx, height-u.Interval, u.Interval)
	if err != nil {
		return err
	}

	prevTime := network.TimeAxis[len(network.TimeAxis)-1]
	network.TimeAxis = append(network.TimeAxis, block.Time)
	network.Difficulty = append(network.Difficulty, sampler.RoundDecimals(block.Difficulty, 2))
	network.Blocktime = append(network.Blocktime, float64(block.Time-prevTime)/float64(u.Interval))
	network.Blocksize = append(network.Blocksize, block.Size)
	network.Txs = append(network.Txs, stats.TxCountAll)
	network.FeesTotal = append(network.FeesTotal, stats.TotalFee)
	network.FeesPerKB = append(network.FeesPerKB, stats.FeePerKB)
	network.BlocksAxis = append(network.BlocksAxis, height)

	supply.TimeAxis = append(supply.TimeAxis, block.Time)
	supply.ShieldSupply = append(supply.ShieldSupply, header.ShieldPoolValue.ChainValue)
	supply.BlocksAxis = append(supply.BlocksAxis, height)
	supply.LastBlockHash = hash
	return nil
}
