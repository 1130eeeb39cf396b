package charts

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/explorercharts/chartdata/dataset"
	"github.com/explorercharts/chartdata/sampler"
)

// memData is a Snapshotter over fixed snapshots.
type memData map[string]*dataset.Snapshot

func (m memData) Snapshot(id string) (*dataset.Snapshot, error) {
	snap, found := m[id]
	if !found {
		return nil, dataset.ErrNotLoaded
	}
	return snap, nil
}

// networkSnapshot has n points 100 blocks apart.
func networkSnapshot(n int) *dataset.Snapshot {
	snap := &dataset.Snapshot{
		ID:       dataset.Network,
		Heights:  make([]int64, n),
		Times:    make([]int64, n),
		Columns:  make(map[string]sampler.Series),
		Revision: 1,
	}
	cols := []string{"difficulty", "blocktime", dataset.ColBlockSize, dataset.ColTxs,
		dataset.ColFees, dataset.ColFeePerByte, "fees_perKb"}
	for _, c := range cols {
		snap.Columns[c] = make(sampler.Series, n)
	}
	for i := 0; i < n; i++ {
		snap.Heights[i] = int64(100 * i)
		snap.Times[i] = int64(1577836800 + 6000*i)
		snap.Columns["difficulty"][i] = float64(i)
		snap.Columns["blocktime"][i] = 60
		snap.Columns[dataset.ColTxs][i] = 200
		snap.Columns[dataset.ColFees][i] = 0.1
	}
	return snap
}

func TestDefaultSpecs(t *testing.T) {
	r := DefaultRegistry()
	canvas := map[string]string{
		"canv_net_01":     Difficulty,
		"canv_net_02":     BlockSize,
		"canv_net_03":     Fees,
		"canv_supply_01":  SupplyTotal,
		"canv_supply_02":  ZerocoinAmount,
		"canv_supply_03":  "supply-denom_1",
		"canv_supply_10":  "supply-denom_5000",
		"canv_testing_01": DoubleMNPayments,
		"canv_git_01":     GithubCommits,
		"canv_git_02":     GithubPeople,
	}
	for alias, id := range canvas {
		spec, err := r.Lookup(alias)
		if err != nil {
			t.Errorf("Lookup(%s): %v", alias, err)
			continue
		}
		if spec.ID != id {
			t.Errorf("Lookup(%s) = %s, want %s", alias, spec.ID, id)
		}
	}

	denom, _ := r.Lookup("canv_supply_05")
	if denom.Target != 60 || denom.Step != sampler.DefaultStep {
		t.Errorf("denomination chart target %d step %d", denom.Target, denom.Step)
	}
	mn, _ := r.Lookup(DoubleMNPayments)
	if mn.Step != 1 || mn.Target != sampler.DefaultTarget {
		t.Errorf("masternode chart step %d target %d", mn.Step, mn.Target)
	}
	if got := r.ForDataset(dataset.Network); !reflect.DeepEqual(got, []string{Difficulty, BlockSize, Fees, FeeRate}) {
		t.Errorf("network charts = %v", got)
	}
}

func TestUnknownChartID(t *testing.T) {
	r := DefaultRegistry()
	_, err := r.Lookup("canv_net_09")
	var uce *UnknownChartIDError
	if !errors.As(err, &uce) {
		t.Fatalf("expected *UnknownChartIDError, got %v", err)
	}
	if err.Error() != "canv_net_09 not found" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestRegistryRegister(t *testing.T) {
	spec := func(id string, aliases ...string) *Spec {
		return &Spec{ID: id, Aliases: aliases, Dataset: "d", Metrics: []sampler.Metric{{Name: "v"}}}
	}
	r, err := NewRegistry(spec("a", "x"))
	if err != nil {
		t.Fatal(err)
	}
	if err = r.Register(spec("a")); err == nil {
		t.Errorf("duplicate id accepted")
	}
	if err = r.Register(spec("b", "x")); err == nil {
		t.Errorf("duplicate alias accepted")
	}
	if err = r.Register(spec("x")); err == nil {
		t.Errorf("id equal to an alias accepted")
	}
	if err = r.Register(&Spec{ID: "c", Dataset: "d"}); err == nil {
		t.Errorf("spec without metrics accepted")
	}

	if err = r.Override(spec("a", "y")); err != nil {
		t.Fatalf("Override: %v", err)
	}
	if _, err = r.Lookup("x"); err == nil {
		t.Errorf("old alias still registered")
	}
	if s, err := r.Lookup("y"); err != nil || s.ID != "a" {
		t.Errorf("Lookup(y) = %v, %v", s, err)
	}
	if len(r.Specs()) != 1 {
		t.Errorf("%d specs registered", len(r.Specs()))
	}
}

func TestRender(t *testing.T) {
	r := DefaultRegistry()
	spec, _ := r.Lookup(BlockSize)
	snap := networkSnapshot(10)

	// Scenario: 10 points over the whole range with a 120 point target.
	frame, err := Render(spec, snap, &sampler.Selection{Preset: sampler.PresetAll}, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if frame.Step != 1 || len(frame.Labels) != 10 {
		t.Fatalf("step %d, %d labels", frame.Step, len(frame.Labels))
	}
	if frame.Labels[0] != "0" || frame.Labels[9] != "900" {
		t.Errorf("labels = %v", frame.Labels)
	}
	if frame.Set != sampler.LabelsetBlocks || frame.Hidden[0] != "1/1/2020, 12:00:00 AM" {
		t.Errorf("axis = %s, hidden[0] = %q", frame.Set, frame.Hidden[0])
	}
	// 200 txs per 100 blocks is 2 per block, and the total keeps growing.
	if want := (sampler.Series{2, 2, 2, 2, 2, 2, 2, 2, 2, 2}); !reflect.DeepEqual(frame.Datasets[1].Data, want) {
		t.Errorf("txes = %v", frame.Datasets[1].Data)
	}
	if got := frame.Datasets[2].Data[9]; got != 2000 {
		t.Errorf("tot_txes = %v", got)
	}
	if frame.Redraws() != 1 || frame.Revision != 1 {
		t.Errorf("redraws %d revision %d", frame.Redraws(), frame.Revision)
	}

	// The initial range skips the first point.
	frame, err = Render(spec, snap, nil, sampler.LabelsetTime, "")
	if err != nil {
		t.Fatal(err)
	}
	if frame.Range != (sampler.Range{From: 1, To: 9}) || frame.Set != sampler.LabelsetTime {
		t.Errorf("initial frame range %+v set %s", frame.Range, frame.Set)
	}
	if frame.Hidden[0] != "100" {
		t.Errorf("hidden labels = %v", frame.Hidden)
	}

	b, err := frame.JSON()
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]interface{}
	if err = json.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"chart", "title", "labelset", "labels", "hiddenlabels", "datasets", "range", "step", "dataset", "revision"} {
		if _, found := decoded[key]; !found {
			t.Errorf("frame JSON has no %q", key)
		}
	}
	rng, _ := decoded["range"].(map[string]interface{})
	if rng["from"] != 1.0 || rng["to"] != 9.0 {
		t.Errorf("frame JSON range = %v", decoded["range"])
	}
}

func TestRenderFees(t *testing.T) {
	spec, _ := DefaultRegistry().Lookup(Fees)
	frame, err := Render(spec, networkSnapshot(4), &sampler.Selection{Preset: sampler.PresetAll}, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if want := (sampler.Series{0.1, 0.2, 0.3, 0.4}); !reflect.DeepEqual(frame.Datasets[2].Data, want) {
		t.Errorf("tot_fees = %v, want %v", frame.Datasets[2].Data, want)
	}
}

func TestRenderFullAndLatest(t *testing.T) {
	snap := &dataset.Snapshot{
		ID:    dataset.Supply,
		Times: []int64{0, 60, 120},
		Columns: map[string]sampler.Series{
			"zpivSupply.denom_1":    {1, 2, 3},
			"zpivSupply.denom_5":    {5, 10, 15},
			"zpivSupply.denom_10":   {0, 0, 10},
			"zpivSupply.denom_50":   {0, 0, 50},
			"zpivSupply.denom_100":  {0, 0, 100},
			"zpivSupply.denom_500":  {0, 0, 500},
			"zpivSupply.denom_1000": {0, 0, 1000},
			"zpivSupply.denom_5000": {0, 0, 5000},
		},
	}
	spec, _ := DefaultRegistry().Lookup(ZerocoinNow)
	frame, err := Render(spec, snap, &sampler.Selection{Preset: sampler.PresetDay}, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(frame.Labels) != 1 {
		t.Fatalf("latest chart has %d points", len(frame.Labels))
	}
	// Coins per denomination: 3/1, 15/5 and then one coin of each.
	want := []float64{3, 3, 1, 1, 1, 1, 1, 1}
	for i, ds := range frame.Datasets {
		if !reflect.DeepEqual(ds.Data, sampler.Series{want[i]}) {
			t.Errorf("%s = %v, want %v", ds.Label, ds.Data, want[i])
		}
	}

	gh := &dataset.Snapshot{
		ID:    dataset.Github,
		Times: make([]int64, 300),
		Columns: map[string]sampler.Series{
			"forks": make(sampler.Series, 300), "stars": make(sampler.Series, 300),
			"subscribers": make(sampler.Series, 300), "pull_request_contributors": make(sampler.Series, 300),
		},
	}
	spec, _ = DefaultRegistry().Lookup(GithubPeople)
	frame, err = Render(spec, gh, &sampler.Selection{Preset: sampler.PresetDay}, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(frame.Labels) != 300 || frame.Set != sampler.LabelsetTime || frame.Labels[0] != "1/1/1970" {
		t.Errorf("full chart: %d labels, set %s, first %q", len(frame.Labels), frame.Set, frame.Labels[0])
	}
}

func TestSpecFile(t *testing.T) {
	dir, err := os.MkdirTemp("", "charts")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "charts.yaml")
	err = os.WriteFile(path, []byte(`charts:
  - id: difficulty
    title: Difficulty only
    dataset: network
    target: 30
    metrics:
      - name: difficulty
      - name: blocktime
        policy: average
        decimals: 2
  - id: mn-frequency
    dataset: masternodes
    step: 1
    metrics:
      - name: tot
        column: double_mn_payments
      - name: freq
        policy: delta
        of: tot
`), 0644)
	if err != nil {
		t.Fatal(err)
	}

	r := DefaultRegistry()
	n, err := ApplySpecFile(r, path)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("applied %d specs", n)
	}
	spec, err := r.Lookup(Difficulty)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Target != 30 || spec.Metrics[1].Policy != sampler.Average || spec.Metrics[1].Decimals != 2 {
		t.Errorf("override not applied: %+v", spec)
	}
	if _, err = r.Lookup("canv_net_01"); err == nil {
		t.Errorf("alias of replaced chart still registered")
	}
	spec, err = r.Lookup("mn-frequency")
	if err != nil || spec.Metrics[1].Policy != sampler.Delta {
		t.Errorf("new chart: %+v, %v", spec, err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("charts:\n  - id: x\n    dataset: network\n    metrics:\n      - name: v\n        policy: median\n"), 0644)
	if _, err = LoadSpecFile(bad); err == nil {
		t.Errorf("unknown policy accepted")
	}
}

func TestChartDataCache(t *testing.T) {
	snap := networkSnapshot(50)
	data := memData{dataset.Network: snap}
	var observed []bool
	cd, err := NewChartData(DefaultRegistry(), data, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	cd.Observe = func(_ string, cached bool, _ time.Duration) { observed = append(observed, cached) }

	week := &sampler.Selection{Preset: sampler.PresetWeek}
	a, err := cd.Chart("canv_net_01", week, "")
	if err != nil {
		t.Fatal(err)
	}
	b, err := cd.Chart(Difficulty, week, sampler.LabelsetBlocks)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) || cd.Len() != 1 {
		t.Errorf("second request not served from cache (%d cached)", cd.Len())
	}
	if !reflect.DeepEqual(observed, []bool{false, true}) {
		t.Errorf("observed = %v", observed)
	}

	// A new dataset revision is a cache miss.
	next := networkSnapshot(51)
	next.Revision = 2
	data[dataset.Network] = next
	c, err := cd.Chart(Difficulty, week, "")
	if err != nil {
		t.Fatal(err)
	}
	if reflect.DeepEqual(a, c) {
		t.Errorf("stale chart served after reload")
	}

	_, err = cd.Chart(Difficulty, &sampler.Selection{Custom: true, BlockFrom: 600, BlockTo: 600}, "")
	var ire *sampler.InvalidRangeError
	if !errors.As(err, &ire) {
		t.Errorf("expected *InvalidRangeError, got %v", err)
	}
	if _, err = cd.Chart(SupplyTotal, nil, ""); !errors.Is(err, dataset.ErrNotLoaded) {
		t.Errorf("missing dataset: %v", err)
	}
}

func TestBoard(t *testing.T) {
	data := memData{dataset.Network: networkSnapshot(1000)}
	b := NewBoard(DefaultRegistry(), data, "")

	f, err := b.Init("canv_net_01")
	if err != nil {
		t.Fatal(err)
	}
	if f.Chart != Difficulty || f.Range != (sampler.Range{From: 1, To: 999}) {
		t.Fatalf("initial frame %s %+v", f.Chart, f.Range)
	}

	f, err = b.SetRange(Difficulty, sampler.PresetSelection(sampler.PresetDay))
	if err != nil {
		t.Fatal(err)
	}
	if f.Range != (sampler.Range{From: 985, To: 999}) {
		t.Fatalf("last day range %+v", f.Range)
	}

	// An invalid range leaves the chart as it was.
	_, err = b.SetRange(Difficulty, sampler.BlockSelection(5000, 1000))
	var rangeErr *sampler.InvalidRangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("expected an InvalidRangeError, got %v", err)
	}
	if f, _ = b.Frame(Difficulty); f.Range != (sampler.Range{From: 985, To: 999}) {
		t.Errorf("range changed to %+v", f.Range)
	}

	f, err = b.SetAxis(Difficulty, sampler.LabelsetTime)
	if err != nil {
		t.Fatal(err)
	}
	if f.Set != sampler.LabelsetTime || f.Range.From != 985 {
		t.Errorf("axis %s range %+v", f.Set, f.Range)
	}

	if _, err = b.Frame(BlockSize); !errors.Is(err, ErrNotOnBoard) {
		t.Errorf("Frame of a chart not on the board: %v", err)
	}
	// Only drawn charts can change axis, and the board is not extended.
	if _, err = b.SetAxis("canv_net_02", sampler.LabelsetTime); !errors.Is(err, ErrNotOnBoard) {
		t.Errorf("SetAxis of a chart not on the board: %v", err)
	}
	if _, err = b.Frame(BlockSize); !errors.Is(err, ErrNotOnBoard) {
		t.Errorf("SetAxis added %s to the board", BlockSize)
	}
	if _, err = b.SetRange("canv_net_09", sampler.PresetSelection(sampler.PresetAll)); err == nil {
		t.Errorf("expected an error for an unknown chart")
	}

	// A reload redraws the chart for its current selection and axis.
	snap := networkSnapshot(600)
	snap.Revision = 2
	data[dataset.Network] = snap
	frames := b.Refresh(dataset.Network)
	if len(frames) != 1 {
		t.Fatalf("refreshed %d charts", len(frames))
	}
	f = frames[0]
	if f.Range != (sampler.Range{From: 585, To: 599}) || f.Revision != 2 || f.Set != sampler.LabelsetTime {
		t.Errorf("refreshed frame range %+v revision %d axis %s", f.Range, f.Revision, f.Set)
	}
	if frames = b.Refresh(dataset.Supply); len(frames) != 0 {
		t.Errorf("refreshed %d supply charts", len(frames))
	}
}
