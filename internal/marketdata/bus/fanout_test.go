package bus

import (
	"context"
	"testing"
	"time"

	"charting-terminalv1/internal/model"
)

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New(10)
	out1 := fo.Subscribe("session")
	out2 := fo.Subscribe("gateway")

	input := make(chan model.Ticker, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	input <- model.Ticker{MarketID: "BI:SPOT:BTCUSDT", Price: 105}

	for i, out := range []<-chan model.Ticker{out1, out2} {
		select {
		case tk := <-out:
			if tk.MarketID != "BI:SPOT:BTCUSDT" || tk.Price != 105 {
				t.Errorf("out%d: unexpected ticker %+v", i+1, tk)
			}
		case <-time.After(time.Second):
			t.Fatalf("out%d: timed out waiting for ticker", i+1)
		}
	}
}

func TestFanOut_DropsForSlowConsumer(t *testing.T) {
	fo := New(1)
	fast := fo.Subscribe("fast")
	_ = fo.Subscribe("slow")

	dropped := make(chan string, 10)
	fo.OnDrop = func(name string) { dropped <- name }

	input := make(chan model.Ticker)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	for i := 0; i < 3; i++ {
		input <- model.Ticker{MarketID: "BI:SPOT:BTCUSDT", Price: float64(i)}
		<-fast
	}

	select {
	case name := <-dropped:
		if name != "slow" {
			t.Errorf("expected slow consumer to drop, got %s", name)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a drop for the slow consumer")
	}

	stats := fo.ChannelStats()
	if len(stats) != 2 || stats[1].Len != 1 || stats[1].Cap != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestFanOut_ClosesOutputsWhenInputCloses(t *testing.T) {
	fo := New(1)
	out := fo.Subscribe("session")
	input := make(chan model.Ticker)
	go fo.Run(context.Background(), input)
	close(input)

	select {
	case _, ok := <-out:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("output not closed")
	}
}
