package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/explorercharts/chartdata/dataset"
	"github.com/explorercharts/chartdata/sampler"
)

// fakeNode is a chain where block h has hash "h<h>" and time 1000+70h.
type fakeNode struct {
	count  int64
	payees map[int64]string
	// hashes overrides the hash of a height.
	hashes map[int64]string
}

func blockTime(h int64) int64 { return 1000 + 70*h }

func (n *fakeNode) GetBlockCount(context.Context) (int64, error) {
	return n.count, nil
}

func (n *fakeNode) GetBlockHash(_ context.Context, height int64) (string, error) {
	if height > n.count {
		return "", fmt.Errorf("height %d out of range", height)
	}
	if h, ok := n.hashes[height]; ok {
		return h, nil
	}
	return fmt.Sprintf("h%d", height), nil
}

func (n *fakeNode) height(hash string) int64 {
	var h int64
	fmt.Sscanf(hash, "h%d", &h)
	return h
}

func (n *fakeNode) GetBlock(_ context.Context, hash string) (*Block, error) {
	h := n.height(hash)
	return &Block{
		Hash:       hash,
		Height:     h,
		Time:       blockTime(h),
		Difficulty: 1.23456,
		Size:       1000 + h,
		Tx:         []string{"cb", fmt.Sprintf("cs%d", h)},
	}, nil
}

func (n *fakeNode) GetBlockHeader(_ context.Context, hash string) (*BlockHeader, error) {
	h := n.height(hash)
	return &BlockHeader{
		Hash:            hash,
		Height:          h,
		Time:            blockTime(h),
		ShieldPoolValue: ShieldPoolValue{ChainValue: float64(h) / 10},
	}, nil
}

func (n *fakeNode) GetBlockIndexStats(_ context.Context, height, count int64) (*BlockIndexStats, error) {
	return &BlockIndexStats{TxCountAll: 2 * count, TotalFee: 0.5, FeePerKB: 0.01}, nil
}

func (n *fakeNode) GetRawTransaction(_ context.Context, txid string) (*RawTransaction, error) {
	var h int64
	fmt.Sscanf(txid, "cs%d", &h)
	return &RawTransaction{
		Txid: txid,
		Vout: []Vout{
			{Value: 0},
			{Value: 1, ScriptPubKey: ScriptPubKey{Addresses: []string{"staker"}}},
			{Value: 2, ScriptPubKey: ScriptPubKey{Addresses: []string{n.payees[h]}}},
		},
	}, nil
}

func parseFile(t *testing.T, def *dataset.Definition, path string) *dataset.Snapshot {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	snap, err := dataset.Parse(def, f)
	if err != nil {
		t.Fatal(err)
	}
	return snap
}

func TestNetworkUpdaterFirstRun(t *testing.T) {
	dir := t.TempDir()
	u := NewNetworkUpdater(&fakeNode{count: 250}, dir)
	added, err := u.Update(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if added != 2 {
		t.Fatalf("added %d points, want 2", added)
	}

	network := parseFile(t, dataset.NetworkDefinition(), u.NetworkFile)
	if !reflect.DeepEqual(network.Heights, []int64{0, 100, 200}) {
		t.Errorf("heights = %v", network.Heights)
	}
	// The first block time spans from the zero time of the seed point.
	blocktime, _ := network.Column("blocktime")
	if want := (sampler.Series{0, float64(blockTime(100)) / 100, 70}); !reflect.DeepEqual(blocktime, want) {
		t.Errorf("blocktime = %v, want %v", blocktime, want)
	}
	diff, _ := network.Column("difficulty")
	if diff[2] != 1.23 {
		t.Errorf("difficulty = %v", diff[2])
	}
	txs, _ := network.Column(dataset.ColTxs)
	if !reflect.DeepEqual(txs, sampler.Series{0, 200, 200}) {
		t.Errorf("txs = %v", txs)
	}

	supply := parseFile(t, dataset.SupplyDefinition(), u.SupplyFile)
	if supply.LastBlockHash != "h200" {
		t.Errorf("last block hash = %q", supply.LastBlockHash)
	}
	shield, _ := supply.Column("shield_supply")
	if !reflect.DeepEqual(shield, sampler.Series{0, 10, 20}) {
		t.Errorf("shield supply = %v", shield)
	}

	// Nothing new.
	if added, err = u.Update(context.Background()); err != nil || added != 0 {
		t.Errorf("second update added %d, %v", added, err)
	}
}

func TestNetworkUpdaterReorg(t *testing.T) {
	dir := t.TempDir()
	node := &fakeNode{count: 700}
	u := NewNetworkUpdater(node, dir)
	u.Interval = 100

	network, supply := newNetworkData(), newSupplyData()
	for h := int64(100); h <= 700; h += 100 {
		network.BlocksAxis = append(network.BlocksAxis, h)
		network.TimeAxis = append(network.TimeAxis, blockTime(h))
		network.Difficulty = append(network.Difficulty, 9)
		network.Blocktime = append(network.Blocktime, 70)
		network.Blocksize = append(network.Blocksize, 9)
		network.Txs = append(network.Txs, 9)
		network.FeesTotal = append(network.FeesTotal, 9)
		network.FeesPerKB = append(network.FeesPerKB, 9)
		supply.BlocksAxis = append(supply.BlocksAxis, h)
		supply.TimeAxis = append(supply.TimeAxis, blockTime(h))
		supply.ShieldSupply = append(supply.ShieldSupply, 9)
	}
	supply.LastBlockHash = "orphaned"
	extra := map[string]json.RawMessage{"piv_supply": json.RawMessage(`[1,2,3,4,5,6,7,8]`)}
	if err := writePlotFile(u.SupplyFile, supply, extra); err != nil {
		t.Fatal(err)
	}
	if err := writePlotFile(u.NetworkFile, network, nil); err != nil {
		t.Fatal(err)
	}

	added, err := u.Update(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if added != 3 {
		t.Errorf("added %d points after the reorg, want 3", added)
	}

	got := new(SupplyData)
	gotExtra, _, err := readPlotFile(u.SupplyFile, got)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.BlocksAxis, []int64{0, 100, 200, 300, 400, 500, 600, 700}) {
		t.Errorf("blocks = %v", got.BlocksAxis)
	}
	if got.LastBlockHash != "h700" {
		t.Errorf("last block hash = %q", got.LastBlockHash)
	}
	// Replaced points have fresh values.
	if got.ShieldSupply[5] != 50 || got.ShieldSupply[4] != 9 {
		t.Errorf("shield supply = %v", got.ShieldSupply)
	}
	if string(gotExtra["piv_supply"]) != `[1,2,3,4,5,6,7,8]` {
		t.Errorf("other supply columns not kept: %v", gotExtra)
	}
}

func TestMasternodeUpdater(t *testing.T) {
	dir := t.TempDir()
	node := &fakeNode{
		count:  6,
		payees: map[int64]string{3: "A", 4: "A", 5: "B", 6: "B", 7: "B"},
	}
	u := NewMasternodeUpdater(node, dir, true)
	u.LastPoWBlock = 2

	added, err := u.Update(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if added != 6 {
		t.Errorf("added %d points, want 6", added)
	}
	data := new(MasternodeData)
	if _, _, err = readPlotFile(u.File, data); err != nil {
		t.Fatal(err)
	}
	if want := []int64{0, 0, 0, 0, 1, 1, 2}; !reflect.DeepEqual(data.DoublePayments, want) {
		t.Errorf("double payments = %v, want %v", data.DoublePayments, want)
	}
	if want := []int64{0, 0, 0, blockTime(3), blockTime(4), blockTime(5), blockTime(6)}; !reflect.DeepEqual(data.TimeAxis, want) {
		t.Errorf("times = %v, want %v", data.TimeAxis, want)
	}
	if data.LastBlockHash != "h6" || data.LastPaid != "B" {
		t.Errorf("last hash %q, last paid %q", data.LastBlockHash, data.LastPaid)
	}

	// The last payee is remembered across runs.
	node.count = 7
	if added, err = u.Update(context.Background()); err != nil || added != 1 {
		t.Fatalf("second update added %d, %v", added, err)
	}
	snap := parseFile(t, dataset.MasternodeDefinition(), u.File)
	col, _ := snap.Column("double_mn_payments")
	if snap.Len() != 8 || col.Last() != 3 {
		t.Errorf("%d points, last %v", snap.Len(), col.Last())
	}
}

func TestAddToWeeklySum(t *testing.T) {
	weeks := []int64{100, 200, 300}
	tests := []struct {
		testName string
		t        int64
		want     []int64
	}{
		{"before", 99, []int64{0, 0, 0}},
		{"first start", 100, []int64{1, 0, 0}},
		{"middle", 250, []int64{0, 1, 0}},
		{"after last", 1000, []int64{0, 0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.testName, func(t *testing.T) {
			sums := make([]int64, len(weeks))
			AddToWeeklySum(weeks, sums, tt.t)
			if !reflect.DeepEqual(sums, tt.want) {
				t.Errorf("sums = %v, want %v", sums, tt.want)
			}
		})
	}
}

func githubTime(t int64) string {
	return time.Unix(t, 0).UTC().Format(githubTimeFmt)
}

func TestGithubUpdater(t *testing.T) {
	const week0, week1 = 1600000000, 1600604800
	pulls := []map[string]interface{}{
		{"number": 3, "created_at": githubTime(week1 + 1), "merged_at": nil, "closed_at": githubTime(week1 + 100)},
		{"number": 2, "created_at": githubTime(week0 + 100), "merged_at": githubTime(week1 + 100), "closed_at": githubTime(week1 + 100)},
		{"number": 1, "created_at": githubTime(week0 - 1e6), "merged_at": nil, "closed_at": githubTime(week0 + 200)},
	}
	forks := map[string]int{"13-09-2020": 10, "20-09-2020": 11}

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/stats/commit_activity", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]CommitActivity{{Week: week0, Total: 5}, {Week: week1, Total: 7}})
	})
	mux.HandleFunc("/repos/o/r/pulls", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			json.NewEncoder(w).Encode(pulls)
			return
		}
		w.Write([]byte("[]"))
	})
	mux.HandleFunc("/coins/pivx/history", func(w http.ResponseWriter, r *http.Request) {
		f, ok := forks[r.URL.Query().Get("date")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"id":"pivx","developer_data":{"forks":%d,"stars":20,"subscribers":30,"pull_request_contributors":4}}`, f)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	u := NewGithubUpdater(t.TempDir())
	u.GithubURL, u.GeckoURL = server.URL, server.URL
	u.Repo = "o/r"
	u.GeckoDelay = 0

	n, err := u.Update(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("%d weeks, want 2", n)
	}

	snap := parseFile(t, dataset.GithubDefinition(), u.File)
	want := map[string]sampler.Series{
		"commits":                   {5, 7},
		"pulls_opened":              {1, 1},
		"pulls_merged":              {0, 1},
		"pulls_closed":              {1, 1},
		"forks":                     {10, 11},
		"stars":                     {20, 20},
		"pull_request_contributors": {4, 4},
	}
	for col, w := range want {
		got, _ := snap.Column(col)
		if !reflect.DeepEqual(got, w) {
			t.Errorf("%s = %v, want %v", col, got, w)
		}
	}
	if !reflect.DeepEqual(snap.Times, []int64{week0, week1}) {
		t.Errorf("weeks = %v", snap.Times)
	}
}

func TestRunOnce(t *testing.T) {
	dir := t.TempDir()
	bad := NewGithubUpdater(dir)
	bad.GithubURL = "http://127.0.0.1:1"
	good := NewNetworkUpdater(&fakeNode{count: 100}, dir)

	err := RunOnce(context.Background(), bad, good)
	ue, ok := err.(*UpdateError)
	if !ok {
		t.Fatalf("expected *UpdateError, got %v", err)
	}
	if _, found := ue.Errs["github"]; !found || len(ue.Errs) != 1 {
		t.Errorf("errors = %v", ue.Errs)
	}
	if _, err = os.Stat(filepath.Join(dir, "network_data.json")); err != nil {
		t.Errorf("network file not written: %v", err)
	}
}
