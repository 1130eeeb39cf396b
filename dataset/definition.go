// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package dataset

// Dataset IDs of the built-in plot files.
const (
	Network     = "network"
	Supply      = "supply"
	Github      = "github"
	Masternodes = "masternodes"
)

// Axis and metadata keys used in the plot files.
const (
	BlocksAxisKey    = "blocks_axis"
	TimeAxisKey      = "time_axis"
	WeeksAxisKey     = "weeks_axis"
	LastBlockHashKey = "lastBlockHash"
	LastBlockNumKey  = "lastBlockNum"
)

// Deriver computes additional columns from the parsed ones. A Deriver that
// finds none of its inputs must leave the snapshot untouched.
type Deriver func(*Snapshot) error

// Definition describes how one plot file is read.
type Definition struct {
	ID   string
	File string
	// HeightKey is the key of the block height axis. When empty, the point
	// index is the height.
	HeightKey string
	TimeKey   string
	// Aliases maps legacy column names to their current names.
	Aliases map[string]string
	Derive  []Deriver
}

// NetworkDefinition reads the 100-block network statistics.
func NetworkDefinition() *Definition {
	return &Definition{
		ID:        Network,
		File:      "network_data.json",
		HeightKey: BlocksAxisKey,
		TimeKey:   TimeAxisKey,
		Aliases: map[string]string{
			"size": "blocksize",
			"fees": "fees_ttl",
		},
		Derive: []Deriver{DeriveFeePerByte},
	}
}

// SupplyDefinition reads the 100-block supply statistics.
func SupplyDefinition() *Definition {
	return &Definition{
		ID:        Supply,
		File:      "supply_data.json",
		HeightKey: BlocksAxisKey,
		TimeKey:   TimeAxisKey,
		Derive:    []Deriver{DeriveZerocoinSpends, DeriveZerocoinTotals},
	}
}

// GithubDefinition reads the weekly developer activity.
func GithubDefinition() *Definition {
	return &Definition{
		ID:      Github,
		File:    "github_data.json",
		TimeKey: WeeksAxisKey,
	}
}

// MasternodeDefinition reads the per-block masternode payment counters.
func MasternodeDefinition() *Definition {
	return &Definition{
		ID:      Masternodes,
		File:    "mn_data.json",
		TimeKey: TimeAxisKey,
	}
}

// DefaultDefinitions are the definitions of every built-in plot file.
func DefaultDefinitions() []*Definition {
	return []*Definition{
		NetworkDefinition(),
		SupplyDefinition(),
		GithubDefinition(),
		MasternodeDefinition(),
	}
}
