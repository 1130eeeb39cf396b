package dataset

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/explorercharts/chartdata/sampler"
)

const networkJSON = `{
	"blocks_axis": [0, 100, 200, 300],
	"time_axis": [1000, 7000, 13000, 19000],
	"difficulty": [1.5, 2.25, 3, 4],
	"blocktime": [0, 60, 60, 60],
	"size": [180, 1180, 2180, 380],
	"txs": [1, 101, 201, 1],
	"fees": [0, 0.001, 0.004, 0],
	"fees_perKb": [0, 0.0001, 0.0001, 0]
}`

func TestParseNetwork(t *testing.T) {
	snap, err := Parse(NetworkDefinition(), strings.NewReader(networkJSON))
	if err != nil {
		t.Fatal(err)
	}
	if snap.Len() != 4 {
		t.Fatalf("len = %d, want 4", snap.Len())
	}
	if snap.Height(2) != 200 || snap.Time(3) != 19000 {
		t.Errorf("axes: height(2) = %d, time(3) = %d", snap.Height(2), snap.Time(3))
	}
	if _, found := snap.Column("size"); found {
		t.Errorf("legacy column name was kept")
	}
	size, found := snap.Column(ColBlockSize)
	if !found || !reflect.DeepEqual(size, sampler.Series{180, 1180, 2180, 380}) {
		t.Errorf("blocksize = %v", size)
	}
	perByte, found := snap.Column(ColFeePerByte)
	if !found {
		t.Fatalf("fee_per_byte not derived")
	}
	want := sampler.Series{0, 0.000001, 0.000002, 0}
	if !reflect.DeepEqual(perByte, want) {
		t.Errorf("fee_per_byte = %v, want %v", perByte, want)
	}
}

const supplyJSON = `{
	"blocks_axis": [0, 100, 200],
	"time_axis": [0, 6000, 12000],
	"pivSupply": [100, 200, 300],
	"zpivSupply": {"denom_1": [0, 10, 8], "denom_5": [0, 50, 60]},
	"zpivMints": {"denom_1": [0, 10, 1], "denom_5": [0, 10, 3]},
	"lastBlockHash": "00ab",
	"lastBlockNum": 200
}`

func TestParseSupply(t *testing.T) {
	snap, err := Parse(SupplyDefinition(), strings.NewReader(supplyJSON))
	if err != nil {
		t.Fatal(err)
	}
	if snap.LastBlockHash != "00ab" || snap.LastBlockNum != 200 {
		t.Errorf("metadata = %q, %d", snap.LastBlockHash, snap.LastBlockNum)
	}
	if !HasDenominations(snap) {
		t.Errorf("HasDenominations = false")
	}

	tests := map[string]sampler.Series{
		"zpivSupply.denom_1": {0, 10, 8},
		// mints - delta supply / value
		"zpivSpends.denom_1": {0, 0, 3},
		"zpivSpends.denom_5": {0, 0, 1},
		"zpivSupply.total":   {0, 60, 68},
		"zpivMints.total":    {0, 20, 4},
		"zpivSpends.total":   {0, 0, 4},
	}
	for name, want := range tests {
		got, found := snap.Column(name)
		if !found {
			t.Errorf("missing column %s", name)
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}
}

func TestParseShieldSupply(t *testing.T) {
	in := `{"blocks_axis": [0, 100], "time_axis": [0, 60], "shield_supply": [0, 12.5], "lastBlockHash": "ff"}`
	snap, err := Parse(SupplyDefinition(), strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if HasDenominations(snap) {
		t.Errorf("HasDenominations = true without zerocoin data")
	}
	if _, found := snap.Column("zpivSupply.total"); found {
		t.Errorf("totals derived without zerocoin data")
	}
	if got := snap.Latest()["shield_supply"]; got != 12.5 {
		t.Errorf("latest shield supply = %v", got)
	}
}

func TestParseMasternodes(t *testing.T) {
	in := `{"lastBlockHash": "", "time_axis": [0, 0, 50, 110], "double_mn_payments": [0, 0, 0, 1]}`
	snap, err := Parse(MasternodeDefinition(), strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if snap.Heights != nil || snap.Height(3) != 3 {
		t.Errorf("index heights expected, got %v", snap.Heights)
	}
	if snap.LastHeight() != 3 {
		t.Errorf("LastHeight = %d", snap.LastHeight())
	}
}

func TestParseTruncatesMismatchedLengths(t *testing.T) {
	in := `{"blocks_axis": [0, 100, 200], "time_axis": [0, 60, 120], "difficulty": [1, 2]}`
	snap, err := Parse(NetworkDefinition(), strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if snap.Len() != 2 || len(snap.Heights) != 2 {
		t.Errorf("expected truncation to 2 points, got %d/%d", snap.Len(), len(snap.Heights))
	}
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"not json":     `blocks`,
		"no time axis": `{"blocks_axis": [0]}`,
		"no heights":   `{"time_axis": [0]}`,
		"bad column":   `{"blocks_axis": [0], "time_axis": [0], "difficulty": ["x"]}`,
		"half denom":   `{"blocks_axis": [0], "time_axis": [0], "zpivSupply": {"denom_1": [0]}}`,
	}
	for name, in := range tests {
		def := NetworkDefinition()
		if name == "half denom" {
			def = SupplyDefinition()
		}
		if _, err := Parse(def, strings.NewReader(in)); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestValidateLengths(t *testing.T) {
	l, err := ValidateLengths(sampler.Series{1, 2}, int64s{1, 2})
	if err != nil || l != 2 {
		t.Errorf("equal lengths: %d, %v", l, err)
	}
	l, err = ValidateLengths(sampler.Series{1, 2, 3}, int64s{1}, sampler.Series{1, 2})
	if !errors.Is(err, ErrLengthMismatch) || l != 1 {
		t.Errorf("mismatched lengths: %d, %v", l, err)
	}
	l, err = ValidateLengths(sampler.Series{1}, sampler.Series{1, 2})
	if !errors.Is(err, ErrLengthMismatch) || l != 1 {
		t.Errorf("longer tail: %d, %v", l, err)
	}
}
