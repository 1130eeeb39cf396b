// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package charts

import (
	"fmt"

	"github.com/explorercharts/chartdata/dataset"
	"github.com/explorercharts/chartdata/sampler"
)

// Keys for the built-in charts.
const (
	Difficulty        = "difficulty"
	BlockSize         = "blocksize"
	Fees              = "fees"
	FeeRate           = "fee-rate"
	SupplyTotal       = "supply"
	ZerocoinAmount    = "zpiv-amount"
	ZerocoinNow       = "zpiv-now"
	ShieldSupply      = "shield-supply"
	GithubCommits     = "github-commits"
	GithubPeople      = "github-people"
	DoubleMNPayments  = "double-mn-payments"
	supplyDenomPrefix = "supply-"
)

// Points of the 50K-block moving average of double masternode payments.
const doublePaymentsWindow = 50000

// SupplyDenomChart is the ID of the supply chart of one denomination.
func SupplyDenomChart(denomKey string) string {
	return supplyDenomPrefix + denomKey
}

// DefaultSpecs returns the built-in chart catalogue of the explorer pages.
func DefaultSpecs() []*Spec {
	specs := []*Spec{
		{
			ID:      Difficulty,
			Title:   "Difficulty and block time",
			Aliases: []string{"canv_net_01"},
			Dataset: dataset.Network,
			Metrics: []sampler.Metric{
				{Name: "difficulty"},
				{Name: "blocktime", Policy: sampler.Average},
			},
		},
		{
			ID:      BlockSize,
			Title:   "Block size and transactions",
			Aliases: []string{"canv_net_02"},
			Dataset: dataset.Network,
			Metrics: []sampler.Metric{
				{Name: "blocksize", Column: dataset.ColBlockSize},
				{Name: "txes", Column: dataset.ColTxs, Policy: sampler.Sum, PerStep: sampler.DefaultStep},
				{Name: "tot_txes", Column: dataset.ColTxs, Policy: sampler.Cumulative},
			},
		},
		{
			ID:      Fees,
			Title:   "Fees",
			Aliases: []string{"canv_net_03"},
			Dataset: dataset.Network,
			Metrics: []sampler.Metric{
				{Name: "avg_fees", Column: dataset.ColFeePerByte},
				{Name: "block_fees", Column: dataset.ColFees},
				{Name: "tot_fees", Column: dataset.ColFees, Policy: sampler.Cumulative, Decimals: 8},
			},
		},
		{
			ID:      FeeRate,
			Title:   "Fee rate",
			Dataset: dataset.Network,
			Metrics: []sampler.Metric{
				{Name: "fees_perKb", Policy: sampler.Average, Decimals: 8},
			},
		},
		{
			ID:      ShieldSupply,
			Title:   "Shield supply",
			Dataset: dataset.Supply,
			Metrics: []sampler.Metric{
				{Name: "shield_supply"},
			},
		},
		supplyTotalSpec(),
		zerocoinAmountSpec(),
	}
	for i, d := range dataset.Denominations {
		specs = append(specs, supplyDenomSpec(d, i))
	}
	specs = append(specs, zerocoinNowSpec(),
		&Spec{
			ID:       GithubCommits,
			Title:    "Commits and pull requests",
			Aliases:  []string{"canv_git_01"},
			Dataset:  dataset.Github,
			Labelset: sampler.LabelsetTime,
			DateOnly: true,
			Full:     true,
			Metrics: []sampler.Metric{
				{Name: "commits"},
				{Name: "pr_opened", Column: "pulls_opened"},
				{Name: "pr_merged", Column: "pulls_merged"},
				{Name: "pr_closed", Column: "pulls_closed"},
			},
		},
		&Spec{
			ID:       GithubPeople,
			Title:    "Forks, stars and contributors",
			Aliases:  []string{"canv_git_02"},
			Dataset:  dataset.Github,
			Labelset: sampler.LabelsetTime,
			DateOnly: true,
			Full:     true,
			Metrics: []sampler.Metric{
				{Name: "forks"},
				{Name: "stars"},
				{Name: "subscribers"},
				{Name: "contributors", Column: "pull_request_contributors"},
			},
		},
		&Spec{
			ID:      DoubleMNPayments,
			Title:   "Double masternode payments",
			Aliases: []string{"canv_testing_01"},
			Dataset: dataset.Masternodes,
			Step:    1,
			Metrics: []sampler.Metric{
				{Name: "total_payments", Column: "double_mn_payments"},
				{Name: "frequency", Policy: sampler.Delta, Of: "total_payments"},
				{Name: "average", Column: "double_mn_payments", Policy: sampler.Window, Window: doublePaymentsWindow},
			},
		},
	)
	return specs
}

func supplyTotalSpec() *Spec {
	metrics := []sampler.Metric{
		{Name: "pivSupply"},
		{Name: "zpivSupply", Column: dataset.DenomColumn(dataset.ColZerocoinSupply, dataset.TotalKey)},
		{Name: "zpivMints", Column: dataset.DenomColumn(dataset.ColZerocoinMints, dataset.TotalKey), Policy: sampler.Sum},
		{Name: "zpivSpends", Column: dataset.DenomColumn(dataset.ColZerocoinSpends, dataset.TotalKey), Policy: sampler.Sum},
	}
	for _, d := range dataset.Denominations {
		metrics = append(metrics, sampler.Metric{
			Name:   d.Key,
			Column: dataset.DenomColumn(dataset.ColZerocoinSupply, d.Key),
		})
	}
	return &Spec{
		ID:      SupplyTotal,
		Title:   "PIV and zPIV supply",
		Aliases: []string{"canv_supply_01"},
		Dataset: dataset.Supply,
		Metrics: metrics,
	}
}

func zerocoinAmountSpec() *Spec {
	metrics := make([]sampler.Metric, 0, len(dataset.Denominations))
	for _, d := range dataset.Denominations {
		metrics = append(metrics, sampler.Metric{
			Name:   d.Key,
			Column: dataset.DenomColumn(dataset.ColZerocoinSupply, d.Key),
			Scale:  1 / d.Value,
		})
	}
	return &Spec{
		ID:      ZerocoinAmount,
		Title:   "zPIV coins per denomination",
		Aliases: []string{"canv_supply_02"},
		Dataset: dataset.Supply,
		Metrics: metrics,
	}
}

func zerocoinNowSpec() *Spec {
	spec := zerocoinAmountSpec()
	spec.ID = ZerocoinNow
	spec.Title = "zPIV coins now"
	spec.Aliases = []string{"zpnowChart"}
	spec.Latest = true
	return spec
}

// supplyDenomSpec is the chart of one denomination. The explorer pages number
// these canv_supply_03 and up.
func supplyDenomSpec(d dataset.Denomination, i int) *Spec {
	return &Spec{
		ID:      SupplyDenomChart(d.Key),
		Title:   d.Key + " supply",
		Aliases: []string{fmt.Sprintf("canv_supply_%02d", i+3)},
		Dataset: dataset.Supply,
		Target:  60,
		Metrics: []sampler.Metric{
			{Name: "zpivSupply", Column: dataset.DenomColumn(dataset.ColZerocoinSupply, d.Key)},
			{Name: "zpivMints", Column: dataset.DenomColumn(dataset.ColZerocoinMints, d.Key), Policy: sampler.Sum},
			{Name: "zpivSpends", Column: dataset.DenomColumn(dataset.ColZerocoinSpends, d.Key), Policy: sampler.Sum},
		},
	}
}

// DefaultRegistry is a Registry of DefaultSpecs.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultSpecs()...)
	if err != nil {
		panic(fmt.Sprintf("built-in charts: %v", err))
	}
	return r
}
