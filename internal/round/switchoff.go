package round

import (
	"context"
	"errors"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"ecogame/internal/ledger"
	"ecogame/internal/scoring"
	"ecogame/internal/types"
)

var (
	ErrNotRunning    = errors.New("round is not running")
	ErrUnknownDevice = errors.New("unknown device")
	ErrAlreadyOff    = errors.New("device is already off")
)

type SwitchOffConfig struct {
	Devices  []string
	Duration time.Duration
	Tick     time.Duration
	// OnChance is the per-tick probability that an off device turns on.
	OnChance float64
	Policy   scoring.SwitchPolicy
}

var DefaultSwitchOff = SwitchOffConfig{
	Devices:  scoring.Devices,
	Duration: 60 * time.Second,
	Tick:     100 * time.Millisecond,
	OnChance: 0.007,
	Policy:   scoring.DefaultSwitch,
}

type TickResult struct {
	// DisplayChanged is set when the whole-second countdown changed.
	DisplayChanged bool                `json:"displayChanged"`
	Seconds        int                 `json:"seconds"`
	TurnedOn       []string            `json:"turnedOn,omitempty"`
	Ended          bool                `json:"ended"`
	Record         *types.PlayerRecord `json:"record,omitempty"`
}

// SwitchOff is the timed switch-off round. Devices turn on at random while
// the clock runs; the player may only turn them off. It is safe for
// concurrent use so a ticker goroutine can drive it while input arrives.
type SwitchOff struct {
	mu  sync.Mutex
	cfg SwitchOffConfig
	sub submitter

	rng       *LCG
	seed      uint32
	phase     Phase
	player    string
	on        map[string]bool
	remaining time.Duration
	score     int
	offCount  int
}

// NewSwitchOff returns an idle round. Start begins the countdown.
func NewSwitchOff(cfg SwitchOffConfig, l ledger.Ledger) *SwitchOff {
	return &SwitchOff{cfg: cfg, sub: submitter{ledger: l}, phase: PhaseIdle, on: map[string]bool{}}
}

// Start begins a round with every device off and the full clock.
func (s *SwitchOff) Start(player string, seed uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.player = ledger.NormalizeName(player)
	s.seed = seed
	s.rng = NewLCG(seed)
	s.on = map[string]bool{}
	s.remaining = s.cfg.Duration
	s.score = 0
	s.offCount = 0
	s.phase = PhasePlaying
	s.sub.reset()
}

// Tick advances the clock by one tick and rolls each off device in device
// order. When the clock runs out the score is saved once.
func (s *SwitchOff) Tick(ctx context.Context) TickResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhasePlaying {
		return TickResult{Ended: s.phase == PhaseComplete, Seconds: s.seconds()}
	}

	prev := s.seconds()
	s.remaining -= s.cfg.Tick
	res := TickResult{Seconds: s.seconds()}
	res.DisplayChanged = res.Seconds != prev

	for _, d := range s.cfg.Devices {
		if !s.on[d] && s.rng.Chance(s.cfg.OnChance) {
			s.on[d] = true
			res.TurnedOn = append(res.TurnedOn, d)
		}
	}

	if s.remaining <= 0 {
		s.phase = PhaseComplete
		res.Ended = true
		rec, err := s.sub.submit(ctx, s.player, s.score)
		if err == nil {
			res.Record = &rec
		}
	}
	return res
}

// TurnOff switches a device off for points. Rejections leave the round
// untouched.
func (s *SwitchOff) TurnOff(device string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhasePlaying {
		return 0, ErrNotRunning
	}
	device = scoring.Normalize(device)
	if !slices.Contains(s.cfg.Devices, device) {
		return 0, ErrUnknownDevice
	}
	if !s.on[device] {
		return 0, ErrAlreadyOff
	}
	delete(s.on, device)
	delta := s.cfg.Policy.TurnOff()
	s.score += delta
	s.offCount++
	return delta, nil
}

// Run ticks the round on every receive from tickC until it ends. A cancelled
// context abandons the round without saving.
func (s *SwitchOff) Run(ctx context.Context, tickC <-chan time.Time, onTick func(TickResult)) (types.PlayerRecord, error) {
	for {
		select {
		case <-ctx.Done():
			s.abandon()
			return types.PlayerRecord{}, ctx.Err()
		case <-tickC:
			res := s.Tick(ctx)
			if onTick != nil {
				onTick(res)
			}
			if res.Ended {
				if res.Record == nil {
					return types.PlayerRecord{}, ErrNotRunning
				}
				return *res.Record, nil
			}
		}
	}
}

func (s *SwitchOff) abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhasePlaying {
		s.phase = PhaseIdle
	}
}

// seconds is the countdown shown to the player.
func (s *SwitchOff) seconds() int {
	return max(0, int(math.Ceil(s.remaining.Seconds())))
}

// ActionsPerSecond is the OFF rate over the full round length.
func (s *SwitchOff) ActionsPerSecond() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return scoring.ActionsPerSecond(s.offCount, s.cfg.Duration.Seconds())
}

// RoomKey names the room image for the current on-set.
func (s *SwitchOff) RoomKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomKey()
}

func (s *SwitchOff) roomKey() string {
	if len(s.on) == 0 {
		return "off"
	}
	on := lo.Keys(s.on)
	slices.Sort(on)
	return strings.Join(on, "_")
}

type SwitchOffView struct {
	Phase            Phase               `json:"phase"`
	Player           string              `json:"player"`
	Seed             uint32              `json:"seed"`
	Seconds          int                 `json:"seconds"`
	Score            int                 `json:"score"`
	OffCount         int                 `json:"offCount"`
	On               []string            `json:"on"`
	Room             string              `json:"room"`
	ActionsPerSecond float64             `json:"actionsPerSecond"`
	Record           *types.PlayerRecord `json:"record,omitempty"`
}

// View snapshots the round for rendering.
func (s *SwitchOff) View() SwitchOffView {
	s.mu.Lock()
	defer s.mu.Unlock()

	on := lo.Filter(s.cfg.Devices, func(d string, _ int) bool { return s.on[d] })
	v := SwitchOffView{
		Phase:            s.phase,
		Player:           s.player,
		Seed:             s.seed,
		Seconds:          s.seconds(),
		Score:            s.score,
		OffCount:         s.offCount,
		On:               on,
		Room:             s.roomKey(),
		ActionsPerSecond: math.Round(scoring.ActionsPerSecond(s.offCount, s.cfg.Duration.Seconds())*100) / 100,
	}
	if s.sub.persisted {
		rec := s.sub.record
		v.Record = &rec
	}
	return v
}

func (s *SwitchOff) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *SwitchOff) Score() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score
}

// IsOn reports whether device is currently on.
func (s *SwitchOff) IsOn(device string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.on[scoring.Normalize(device)]
}
