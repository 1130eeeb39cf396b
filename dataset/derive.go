// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package dataset

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/explorercharts/chartdata/sampler"
)

// Derived and source column names.
const (
	ColBlockSize  = "blocksize"
	ColTxs        = "txs"
	ColFees       = "fees_ttl"
	ColFeePerByte = "fee_per_byte"

	ColZerocoinSupply = "zpivSupply"
	ColZerocoinMints  = "zpivMints"
	ColZerocoinSpends = "zpivSpends"

	TotalKey = "total"
)

// blockOverhead is the number of bytes of a block that carry no transaction
// fees.
const blockOverhead = 180

// Denomination is a zerocoin denomination.
type Denomination struct {
	Key   string
	Value float64
}

// Denominations lists the zerocoin denominations from smallest to largest.
var Denominations = []Denomination{
	{"denom_1", 1},
	{"denom_5", 5},
	{"denom_10", 10},
	{"denom_50", 50},
	{"denom_100", 100},
	{"denom_500", 500},
	{"denom_1000", 1000},
	{"denom_5000", 5000},
}

// DenomColumn is the column name of a denomination in a nested column group,
// e.g. "zpivSupply.denom_5".
func DenomColumn(group, denomKey string) string {
	return group + "." + denomKey
}

// DeriveFeePerByte adds the average fee per byte of each point. Points with
// at most one transaction, which is only the coinbase, have no fee rate.
func DeriveFeePerByte(s *Snapshot) error {
	fees, hasFees := s.Columns[ColFees]
	size, hasSize := s.Columns[ColBlockSize]
	txs, hasTxs := s.Columns[ColTxs]
	if !hasFees || !hasSize || !hasTxs {
		return nil
	}
	perByte := make(sampler.Series, s.Len())
	for i := range perByte {
		if txs[i] <= 1 || size[i] <= blockOverhead {
			continue
		}
		rate := decimal.NewFromFloat(fees[i]).Div(decimal.NewFromFloat(size[i] - blockOverhead))
		perByte[i], _ = rate.Round(8).Float64()
	}
	s.Columns[ColFeePerByte] = perByte
	return nil
}

// DeriveZerocoinSpends adds the number of spends per denomination, which is
// the number of mints less the change in the number of coins.
func DeriveZerocoinSpends(s *Snapshot) error {
	n := s.Len()
	for _, d := range Denominations {
		supply, hasSupply := s.Columns[DenomColumn(ColZerocoinSupply, d.Key)]
		mints, hasMints := s.Columns[DenomColumn(ColZerocoinMints, d.Key)]
		if !hasSupply && !hasMints {
			continue
		}
		if !hasSupply || !hasMints {
			return fmt.Errorf("denomination %s needs both supply and mints", d.Key)
		}
		spends := make(sampler.Series, n)
		for i := 1; i < n; i++ {
			spends[i] = mints[i] - (supply[i]-supply[i-1])/d.Value
		}
		s.Columns[DenomColumn(ColZerocoinSpends, d.Key)] = spends
	}
	return nil
}

// DeriveZerocoinTotals adds the sum over all denominations of the supply,
// mints and spends columns.
func DeriveZerocoinTotals(s *Snapshot) error {
	n := s.Len()
	for _, group := range []string{ColZerocoinSupply, ColZerocoinMints, ColZerocoinSpends} {
		var total sampler.Series
		for _, d := range Denominations {
			col, found := s.Columns[DenomColumn(group, d.Key)]
			if !found {
				continue
			}
			if total == nil {
				total = make(sampler.Series, n)
			}
			for i := 0; i < n; i++ {
				total[i] += col[i]
			}
		}
		if total != nil {
			s.Columns[DenomColumn(group, TotalKey)] = total
		}
	}
	return nil
}

// HasDenominations reports whether the snapshot carries zerocoin columns.
func HasDenominations(s *Snapshot) bool {
	for name := range s.Columns {
		if strings.HasPrefix(name, ColZerocoinSupply+".") {
			return true
		}
	}
	return false
}
