package round

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func alwaysOnConfig() SwitchOffConfig {
	cfg := DefaultSwitchOff
	cfg.OnChance = 1
	return cfg
}

func TestSwitchOffFullRoundPersistsOnce(t *testing.T) {
	l := &recordingLedger{}
	s := NewSwitchOff(alwaysOnConfig(), l)
	s.Start("Hana", 1)

	ticks := 0
	var last TickResult
	for {
		last = s.Tick(context.Background())
		ticks++
		if last.Ended {
			break
		}
		if ticks%10 == 0 {
			if _, err := s.TurnOff("tv"); err != nil {
				t.Fatalf("turn off at tick %d: %v", ticks, err)
			}
		}
	}
	if ticks != 600 {
		t.Errorf("round ended after %d ticks, want 600", ticks)
	}
	if last.Seconds != 0 || last.Record == nil {
		t.Errorf("final tick %+v", last)
	}
	if l.count() != 1 || l.calls[0].Total != 590 {
		t.Errorf("ledger calls = %+v", l.calls)
	}
	if aps := s.ActionsPerSecond(); math.Abs(aps-59.0/60.0) > 1e-9 {
		t.Errorf("ActionsPerSecond = %f", aps)
	}
	if r := s.Tick(context.Background()); !r.Ended || l.count() != 1 {
		t.Error("ticks after the end must not persist again")
	}
	if _, err := s.TurnOff("tv"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("turn off after end err = %v", err)
	}
}

func TestSwitchOffTurnOffRejections(t *testing.T) {
	s := NewSwitchOff(DefaultSwitchOff, nil)
	if _, err := s.TurnOff("lamp"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("before start err = %v", err)
	}
	s.Start("Ira", 9)
	if _, err := s.TurnOff("fridge"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("unknown device err = %v", err)
	}
	_, err := s.TurnOff("lamp")
	if !errors.Is(err, ErrAlreadyOff) {
		t.Errorf("off device err = %v", err)
	}
	if s.Score() != 0 || s.View().OffCount != 0 {
		t.Error("rejected turn off changed state")
	}
}

func TestSwitchOffCountdownDisplay(t *testing.T) {
	s := NewSwitchOff(DefaultSwitchOff, nil)
	s.Start("Jo", 3)
	changes := 0
	for i := 0; i < 20; i++ {
		r := s.Tick(context.Background())
		if r.DisplayChanged {
			changes++
		}
	}
	// 60s -> 58s crosses two whole-second boundaries.
	if changes != 2 {
		t.Errorf("display changed %d times in 2s", changes)
	}
	if got := s.View().Seconds; got != 58 {
		t.Errorf("seconds = %d", got)
	}
}

func TestSwitchOffSeededRoundsReplay(t *testing.T) {
	run := func(seed uint32) []string {
		s := NewSwitchOff(DefaultSwitchOff, nil)
		s.Start("k", seed)
		var events []string
		for {
			r := s.Tick(context.Background())
			for _, d := range r.TurnedOn {
				events = append(events, d)
				s.TurnOff(d)
			}
			if r.Ended {
				return events
			}
		}
	}
	a, b := run(2024), run(2024)
	if len(a) != len(b) {
		t.Fatalf("replays differ in length: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("replays diverge at %d: %s vs %s", i, a[i], b[i])
		}
	}
}

func TestSwitchOffRoomKey(t *testing.T) {
	s := NewSwitchOff(alwaysOnConfig(), nil)
	s.Start("Lu", 1)
	if got := s.RoomKey(); got != "off" {
		t.Errorf("RoomKey before tick = %q", got)
	}
	s.Tick(context.Background())
	if got := s.RoomKey(); got != "bigbulb_fancylight_lamp_tv" {
		t.Errorf("RoomKey all on = %q", got)
	}
	s.TurnOff("fancylight")
	s.TurnOff("bigbulb")
	if got := s.RoomKey(); got != "lamp_tv" {
		t.Errorf("RoomKey = %q", got)
	}
	if !s.IsOn("TV") || s.IsOn("bigbulb") {
		t.Error("IsOn disagrees with room key")
	}
}

func TestSwitchOffRunAbandonPersistsNothing(t *testing.T) {
	l := &recordingLedger{}
	s := NewSwitchOff(DefaultSwitchOff, l)
	s.Start("Mo", 4)

	ctx, cancel := context.WithCancel(context.Background())
	tickC := make(chan time.Time)
	done := make(chan error, 1)
	go func() {
		_, err := s.Run(ctx, tickC, nil)
		done <- err
	}()
	tickC <- time.Now()
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run err = %v", err)
	}
	if l.count() != 0 {
		t.Error("abandoned round persisted")
	}
	if s.Phase() != PhaseIdle {
		t.Errorf("phase = %s", s.Phase())
	}
}

func TestSwitchOffRunToCompletion(t *testing.T) {
	cfg := DefaultSwitchOff
	cfg.Duration = time.Second
	l := &recordingLedger{}
	s := NewSwitchOff(cfg, l)
	s.Start("Nia", 8)

	tickC := make(chan time.Time, 10)
	for i := 0; i < 10; i++ {
		tickC <- time.Now()
	}
	seen := 0
	rec, err := s.Run(context.Background(), tickC, func(TickResult) { seen++ })
	if err != nil {
		t.Fatal(err)
	}
	if seen != 10 || rec.Name != "Nia" || l.count() != 1 {
		t.Errorf("seen=%d rec=%+v calls=%d", seen, rec, l.count())
	}
}
