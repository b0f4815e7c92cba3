package scoring

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/rastreador/internal/domain"
)

var day0 = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

func contracts(byIdentity map[string][]string) []domain.ContractRecord {
	var out []domain.ContractRecord
	for id, numbers := range byIdentity {
		for i, n := range numbers {
			out = append(out, domain.ContractRecord{Identity: id, Number: n, Date: day0.AddDate(0, 0, i)})
		}
	}
	return out
}

func alert(id, key string, amount int64) domain.Alert {
	return domain.Alert{
		Identity:       id,
		ContractKey:    key,
		ContractNumber: key,
		TotalAmount:    decimal.NewFromInt(amount),
		Parties:        []string{"A"},
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		score float64
		want  domain.SuspicionLevel
	}{
		{100, domain.LevelCritical},
		{80, domain.LevelCritical},
		{79.9, domain.LevelHigh},
		{60, domain.LevelHigh},
		{59.99, domain.LevelMedium},
		{0, domain.LevelMedium},
	}
	for _, tt := range tests {
		if got := Classify(tt.score); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestRankSuspects(t *testing.T) {
	all := contracts(map[string][]string{
		"111": {"C1", "C1", "C2"},
		"222": {"D1", "D2", "D3", "D4", "D5"},
		"333": {"E1"},
		"444": {"F1"},
	})
	alerts := []domain.Alert{
		alert("111", "C1", 100),
		alert("111", "C2", 50),
		alert("222", "D1", 10),
		alert("222", "D2", 10),
		alert("222", "D3", 10),
		alert("444", "F1", 5),
		alert("333", "E1", 5),
	}

	suspects := RankSuspects(alerts, all, 0)
	if len(suspects) != 4 {
		t.Fatalf("suspects = %d, want 4", len(suspects))
	}

	// 111, 333, 444 all score 100; ties break by identity.
	order := []string{"111", "333", "444", "222"}
	for i, id := range order {
		if suspects[i].Identity != id {
			t.Errorf("rank %d = %s, want %s", i+1, suspects[i].Identity, id)
		}
	}

	first := suspects[0]
	if first.AlertContracts != 2 || first.TotalContracts != 2 || first.Score != 100 {
		t.Errorf("111 = %+v, want 2/2 = 100", first)
	}
	if first.Level != domain.LevelCritical {
		t.Errorf("111 level = %s", first.Level)
	}
	if !first.TotalAmount.Equal(decimal.NewFromInt(150)) {
		t.Errorf("111 amount = %s, want 150", first.TotalAmount)
	}

	last := suspects[3]
	if last.Score != 60 || last.Level != domain.LevelHigh {
		t.Errorf("222 = %v %s, want 60 HIGH", last.Score, last.Level)
	}

	if top := RankSuspects(alerts, all, 2); len(top) != 2 {
		t.Errorf("topN not applied: %d", len(top))
	}
	if RankSuspects(nil, all, 5) != nil {
		t.Error("no alerts should rank nobody")
	}
}

func TestRankSuspectsZeroDenominator(t *testing.T) {
	suspects := RankSuspects([]domain.Alert{alert("999", "X", 1)}, nil, 0)
	if len(suspects) != 1 {
		t.Fatalf("suspects = %d, want 1", len(suspects))
	}
	if suspects[0].Score != 0 || suspects[0].TotalContracts != 0 {
		t.Errorf("score = %v, want 0", suspects[0].Score)
	}
}

func TestConcentration(t *testing.T) {
	byIdentity := make(map[string][]string)
	// 60 providers; provider i has (60 - i) distinct contracts.
	for i := 0; i < 60; i++ {
		id := fmt.Sprintf("%03d", i)
		for j := 0; j < 60-i; j++ {
			byIdentity[id] = append(byIdentity[id], fmt.Sprintf("%s-%d", id, j))
		}
	}
	report := Concentration(contracts(byIdentity))

	if report.Providers != 60 {
		t.Errorf("providers = %d, want 60", report.Providers)
	}
	wantTotal := 60 * 61 / 2
	if report.TotalContracts != wantTotal {
		t.Errorf("total = %d, want %d", report.TotalContracts, wantTotal)
	}

	top := report.Bands[0]
	if top.Label != domain.BandTop10 || top.Identities != 10 {
		t.Errorf("top band = %+v", top)
	}
	// 60 + 59 + ... + 51
	if top.Contracts != 555 {
		t.Errorf("top contracts = %d, want 555", top.Contracts)
	}
	if report.Bands[1].Identities != 40 || report.Bands[2].Identities != 10 {
		t.Errorf("band sizes = %d, %d", report.Bands[1].Identities, report.Bands[2].Identities)
	}

	sumPct := 0.0
	for _, b := range report.Bands {
		sumPct += b.Percentage
	}
	if math.Abs(sumPct-100) > 1e-9 {
		t.Errorf("percentages sum to %v", sumPct)
	}

	empty := Concentration(nil)
	if empty.TotalContracts != 0 || len(empty.Bands) != 3 || empty.Bands[0].Percentage != 0 {
		t.Errorf("empty report = %+v", empty)
	}
}

func TestDuplication(t *testing.T) {
	report := Duplication(contracts(map[string][]string{
		"111": {"C1", "C1", "C1", "C2"},
		"222": {"D1"},
	}))

	if report.TotalRows != 5 || report.DistinctContracts != 3 || report.DuplicateRows != 2 {
		t.Errorf("totals = %+v", report)
	}
	if report.DuplicatePct != 40 {
		t.Errorf("pct = %v, want 40", report.DuplicatePct)
	}
	first := report.Entries[0]
	if first.Identity != "111" || first.DuplicateRows != 2 || first.DuplicatePct != 50 {
		t.Errorf("first entry = %+v", first)
	}

	if empty := Duplication(nil); empty.DuplicatePct != 0 || len(empty.Entries) != 0 {
		t.Errorf("empty = %+v", empty)
	}
}

func TestDonors(t *testing.T) {
	contribs := []domain.ContributionRecord{
		{Identity: "111", Amount: decimal.NewFromInt(100)},
		{Identity: "111", Amount: decimal.NewFromInt(50)},
		{Identity: "222", Amount: decimal.NewFromInt(500)},
		{Identity: "333", Amount: decimal.NewFromInt(10)},
		{Identity: "111", Amount: decimal.NewFromInt(1)},
	}
	stats := Donors(contribs, 2)

	if stats.TotalDonors != 3 || stats.RepeatDonors != 1 || stats.MaxCount != 3 {
		t.Errorf("stats = %+v", stats)
	}
	if len(stats.TopByAmount) != 2 {
		t.Fatalf("top = %d, want 2", len(stats.TopByAmount))
	}
	if stats.TopByAmount[0].Identity != "222" || stats.TopByAmount[1].Identity != "111" {
		t.Errorf("top order = %+v", stats.TopByAmount)
	}
	if !stats.TopByAmount[1].TotalAmount.Equal(decimal.NewFromInt(151)) {
		t.Errorf("111 total = %s", stats.TopByAmount[1].TotalAmount)
	}
}

func genContracts() gopter.Gen {
	return gen.SliceOf(gen.IntRange(0, 30)).Map(func(v []int) []domain.ContractRecord {
		out := make([]domain.ContractRecord, len(v))
		for i, n := range v {
			out[i] = domain.ContractRecord{
				Identity: fmt.Sprintf("%d", n%70),
				Number:   fmt.Sprintf("K%d", n),
				Date:     day0,
			}
		}
		return out
	})
}

func TestScoringProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("concentration bands partition the total", prop.ForAll(
		func(cs []domain.ContractRecord) bool {
			r := Concentration(cs)
			sum, providers := 0, 0
			for _, b := range r.Bands {
				sum += b.Contracts
				providers += b.Identities
			}
			return sum == r.TotalContracts && providers == r.Providers
		},
		genContracts(),
	))

	properties.Property("scores stay within 0..100", prop.ForAll(
		func(cs []domain.ContractRecord, pick []bool) bool {
			var alerts []domain.Alert
			for i, c := range cs {
				if i < len(pick) && pick[i] {
					alerts = append(alerts, domain.Alert{Identity: c.Identity, ContractKey: c.Key()})
				}
			}
			for _, s := range RankSuspects(alerts, cs, 0) {
				if s.Score < 0 || s.Score > 100 {
					return false
				}
				if s.AlertContracts == s.TotalContracts && s.Score != 100 {
					return false
				}
			}
			return true
		},
		genContracts(),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
