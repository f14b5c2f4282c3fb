package series

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"charting-terminalv1/internal/model"
)

func makeCandle(ts int64, close float64) model.Candle {
	return model.Candle{Time: ts, Open: close, High: close + 1, Low: close - 1, Close: close, Volume: 1}
}

func makeRange(from, step int64, n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := 0; i < n; i++ {
		out[i] = makeCandle(from+int64(i)*step, 100+float64(i))
	}
	return out
}

func assertMonotonic(t *testing.T, s *Series) {
	t.Helper()
	cs := s.Candles()
	for i := 1; i < len(cs); i++ {
		if cs[i].Time <= cs[i-1].Time {
			t.Fatalf("times not strictly increasing at %d: %d <= %d", i, cs[i].Time, cs[i-1].Time)
		}
	}
}

func TestNormalize_SortsDedupesAndDropsNonFinite(t *testing.T) {
	in := []model.Candle{
		makeCandle(180, 3),
		makeCandle(60, 1),
		{Time: 120, Open: math.NaN(), High: 1, Low: 1, Close: 1},
		makeCandle(180, 33), // duplicate, last wins
		makeCandle(120, 2),
	}
	out := Normalize(in)
	if len(out) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(out))
	}
	if out[0].Time != 60 || out[1].Time != 120 || out[2].Time != 180 {
		t.Fatalf("unexpected order: %+v", out)
	}
	if out[2].Close != 33 {
		t.Errorf("expected last-seen duplicate to win, got close=%v", out[2].Close)
	}
	if in[0].Time != 180 {
		t.Error("input was mutated")
	}
}

func TestReplace_RejectsEmptyInput(t *testing.T) {
	s := New("BI:SPOT:BTCUSDT", model.TF1m)
	if err := s.Replace(nil); !errors.Is(err, model.ErrInvalidSeries) {
		t.Fatalf("expected ErrInvalidSeries, got %v", err)
	}
	bad := []model.Candle{{Time: 60, Open: math.Inf(1), High: 1, Low: 1, Close: 1}}
	if err := s.Replace(bad); !errors.Is(err, model.ErrInvalidSeries) {
		t.Fatalf("expected ErrInvalidSeries for all non-finite input, got %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("failed replace must leave series untouched, len=%d", s.Len())
	}
}

func TestReplace_StoresNormalized(t *testing.T) {
	s := New("BI:SPOT:BTCUSDT", model.TF1m)
	if err := s.Replace([]model.Candle{makeCandle(120, 2), makeCandle(60, 1)}); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 2 || !s.Dirty() {
		t.Fatalf("len=%d dirty=%v", s.Len(), s.Dirty())
	}
	first, _ := s.First()
	if first.Time != 60 {
		t.Errorf("expected first bar at 60, got %d", first.Time)
	}
}

func TestMergeOlder_AddsAndIsIdempotent(t *testing.T) {
	s := New("BI:SPOT:BTCUSDT", model.TF1m)
	_ = s.Replace(makeRange(6000, 60, 10))

	page := makeRange(5400, 60, 10) // 5400..5940
	if added := s.MergeOlder(page); added != 10 {
		t.Fatalf("first merge: expected 10 added, got %d", added)
	}
	once := s.Candles()

	if added := s.MergeOlder(page); added != 0 {
		t.Fatalf("second merge: expected 0 added, got %d", added)
	}
	twice := s.Candles()
	if len(once) != len(twice) {
		t.Fatalf("series changed on repeated merge: %d vs %d", len(once), len(twice))
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Fatalf("bar %d differs after repeated merge", i)
		}
	}
	assertMonotonic(t, s)
}

func TestMergeOlder_NeverOverwritesLiveBar(t *testing.T) {
	s := New("BI:SPOT:BTCUSDT", model.TF1m)
	_ = s.Replace(makeRange(600, 60, 3)) // 600, 660, 720
	s.ApplyTick(999, 725, 60)

	page := []model.Candle{makeCandle(540, 1), makeCandle(720, 1), makeCandle(780, 1)}
	if added := s.MergeOlder(page); added != 1 {
		t.Fatalf("expected only the older bar to be added, got %d", added)
	}
	last, _ := s.Last()
	if last.Time != 720 || last.Close != 999 {
		t.Errorf("live bar overwritten: %+v", last)
	}
}

func TestApplyTick_SameBucketUpdates(t *testing.T) {
	s := New("BI:SPOT:BTCUSDT", model.TF1h)
	_ = s.Replace([]model.Candle{{Time: 7200, Open: 100, High: 101, Low: 99, Close: 100}})
	s.MarkClean()
	v := s.Version()

	if r := s.ApplyTick(103, 7300, 3600); r != TickUpdated {
		t.Fatalf("expected TickUpdated, got %v", r)
	}
	if r := s.ApplyTick(97, 7400, 3600); r != TickUpdated {
		t.Fatalf("expected TickUpdated, got %v", r)
	}
	last, _ := s.Last()
	if last.Open != 100 || last.High != 103 || last.Low != 97 || last.Close != 97 {
		t.Errorf("unexpected bar: %+v", last)
	}
	if !s.Dirty() {
		t.Error("tick should mark series dirty")
	}
	if s.Version() != v {
		t.Error("same-bucket tick must not bump version")
	}
}

func TestApplyTick_NewBucketOpensAtPreviousClose(t *testing.T) {
	s := New("BI:SPOT:BTCUSDT", model.TF1h)
	_ = s.Replace([]model.Candle{{Time: 7200, Open: 98, High: 101, Low: 97, Close: 99}})

	s.ApplyTick(100, 7300, 3600)
	if r := s.ApplyTick(105, 11000, 3600); r != TickAppended {
		t.Fatalf("expected TickAppended, got %v", r)
	}
	if s.Len() != 2 {
		t.Fatalf("expected exactly one new bar, len=%d", s.Len())
	}
	last, _ := s.Last()
	if last.Time != 10800 || last.Open != 100 || last.Close != 105 || last.High != 105 || last.Low != 105 {
		t.Errorf("unexpected new bar: %+v", last)
	}

	// A tick inside the prior hour still buckets to 7200 and is stale now.
	if r := s.ApplyTick(50, 9000, 3600); r != TickStale {
		t.Fatalf("expected TickStale, got %v", r)
	}
}

func TestApplyTick_StaleLeavesSeriesUnchanged(t *testing.T) {
	s := New("BI:SPOT:BTCUSDT", model.TF1m)
	_ = s.Replace(makeRange(600, 60, 3))
	before := s.Candles()
	s.MarkClean()

	var staleCount int
	s.OnStaleTick = func(bucket, last int64) { staleCount++ }

	if r := s.ApplyTick(1, 599, 60); r != TickStale {
		t.Fatalf("expected TickStale, got %v", r)
	}
	after := s.Candles()
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("bar %d changed on stale tick", i)
		}
	}
	if s.Dirty() {
		t.Error("stale tick must not mark dirty")
	}
	if staleCount != 1 {
		t.Errorf("expected 1 stale callback, got %d", staleCount)
	}
}

func TestApplyTick_IgnoredCases(t *testing.T) {
	s := New("BI:SPOT:BTCUSDT", model.TF1m)
	if r := s.ApplyTick(1, 60, 60); r != TickIgnored {
		t.Errorf("empty series: expected TickIgnored, got %v", r)
	}
	_ = s.Replace(makeRange(600, 60, 1))
	if r := s.ApplyTick(math.NaN(), 600, 60); r != TickIgnored {
		t.Errorf("NaN price: expected TickIgnored, got %v", r)
	}
}

func TestMonotonicity_RandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := New("BI:PERP:ETHUSDT", model.TF1m)
	_ = s.Replace(makeRange(60_000, 60, 50))

	for i := 0; i < 2000; i++ {
		switch rng.Intn(3) {
		case 0:
			first, _ := s.First()
			n := rng.Intn(20)
			start := first.Time - int64(rng.Intn(30))*60
			page := make([]model.Candle, 0, n)
			for k := 0; k < n; k++ {
				page = append(page, makeCandle(start-int64(rng.Intn(40))*60, rng.Float64()*100))
			}
			s.MergeOlder(page)
		case 1:
			last, _ := s.Last()
			s.ApplyTick(rng.Float64()*100, last.Time+int64(rng.Intn(200))-60, 60)
		default:
			if rng.Intn(50) == 0 {
				_ = s.Replace(makeRange(int64(rng.Intn(1000))*60, 60, 10+rng.Intn(10)))
			}
		}
		assertMonotonic(t, s)
	}
}
