// Command ecoterm plays the switch-off round in a terminal and posts the
// score to a leaderboard server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/joho/godotenv"

	"ecogame/internal/ledger"
	"ecogame/internal/round"
	"ecogame/internal/scoring"
	"ecogame/internal/types"
)

const (
	frameMs  = 33
	flashFor = 600 * time.Millisecond

	msgAlreadyOff = "Switch can only turn OFF."
)

var (
	styleTitle = tcell.StyleDefault.Foreground(tcell.ColorGreen).Bold(true)
	styleOn    = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorYellow)
	styleOff   = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleError = tcell.StyleDefault.Foreground(tcell.ColorRed)
	styleInfo  = tcell.StyleDefault.Foreground(tcell.ColorWhite)
)

type Game struct {
	screen tcell.Screen
	round  *round.SwitchOff
	player string

	flash     string
	flashTime time.Time
	record    *types.PlayerRecord
}

// NewGame takes over the terminal and starts a first round for player.
func NewGame(l ledger.Ledger, player string) (*Game, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}
	g := &Game{
		screen: screen,
		round:  round.NewSwitchOff(round.DefaultSwitchOff, l),
		player: player,
	}
	g.restart()
	return g, nil
}

func (g *Game) restart() {
	g.round.Start(g.player, round.SeedFromTime(time.Now()))
	g.record = nil
	g.flash = ""
}

// deviceForKey maps the number row to devices in draw order.
func deviceForKey(r rune) (string, bool) {
	i := int(r - '1')
	if i < 0 || i >= len(scoring.Devices) {
		return "", false
	}
	return scoring.Devices[i], true
}

func (g *Game) say(msg string) {
	g.flash = msg
	g.flashTime = time.Now()
}

// handleInput returns false when the player quits.
func (g *Game) handleInput(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
			return false
		}
		if ev.Key() != tcell.KeyRune {
			return true
		}
		switch r := ev.Rune(); r {
		case 'q':
			return false
		case 'r':
			if g.round.Phase() != round.PhasePlaying {
				g.restart()
			}
		default:
			device, ok := deviceForKey(r)
			if !ok {
				return true
			}
			delta, err := g.round.TurnOff(device)
			switch {
			case errors.Is(err, round.ErrAlreadyOff):
				g.say(msgAlreadyOff)
			case err != nil:
				g.say(err.Error())
			default:
				g.say(fmt.Sprintf("+%d", delta))
			}
		}
	case *tcell.EventResize:
		g.screen.Sync()
	}
	return true
}

func (g *Game) drawText(x, y int, style tcell.Style, text string) {
	for i, r := range []rune(text) {
		g.screen.SetContent(x+i, y, r, nil, style)
	}
}

func (g *Game) draw() {
	g.screen.Clear()
	v := g.round.View()

	g.drawText(2, 1, styleTitle, "SWITCH IT OFF")
	g.drawText(2, 2, styleInfo, fmt.Sprintf("%s   time %2ds   score %d", v.Player, v.Seconds, v.Score))

	for i, d := range scoring.Devices {
		style, state := styleOff, "off"
		if g.round.IsOn(d) {
			style, state = styleOn, " ON "
		}
		g.drawText(2, 4+i, style, fmt.Sprintf("[%d] %-10s %s", i+1, d, state))
	}
	g.drawText(2, 9, styleInfo, "room: "+v.Room)

	if g.flash != "" && time.Since(g.flashTime) < flashFor {
		style := styleInfo
		if !strings.HasPrefix(g.flash, "+") {
			style = styleError
		}
		g.drawText(2, 11, style, g.flash)
	}

	if v.Phase == round.PhaseComplete {
		g.drawText(2, 13, styleTitle, fmt.Sprintf("Time! %d switches, %.2f per second", v.OffCount, v.ActionsPerSecond))
		if g.record != nil {
			g.drawText(2, 14, styleInfo, fmt.Sprintf("Saved! +%d (Total: %d)", v.Score, g.record.Total))
		}
		g.drawText(2, 16, styleOff, "r: play again   q: quit")
	} else {
		g.drawText(2, 16, styleOff, "1-4: switch off   q: quit")
	}
	g.screen.Show()
}

func (g *Game) run(ctx context.Context) {
	ticker := time.NewTicker(round.DefaultSwitchOff.Tick)
	defer ticker.Stop()
	frames := time.NewTicker(frameMs * time.Millisecond)
	defer frames.Stop()

	eventChan := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := g.screen.PollEvent()
			if ev == nil {
				return
			}
			eventChan <- ev
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-eventChan:
			if !g.handleInput(ev) {
				return
			}
		case <-ticker.C:
			if res := g.round.Tick(ctx); res.Record != nil {
				g.record = res.Record
			}
		case <-frames.C:
			g.draw()
		}
	}
}

func (g *Game) cleanup() {
	g.screen.Fini()
}

// openLedger uses the leaderboard server when LEDGER_URL is set and a local
// SQLite file otherwise.
func openLedger() (ledger.Ledger, func(), error) {
	if url := strings.TrimSpace(os.Getenv("LEDGER_URL")); url != "" {
		return ledger.NewClient(url, ledger.DefaultTimeout), func() {}, nil
	}
	path := os.Getenv("LEDGER_DB_PATH")
	if path == "" {
		path = "data/leaderboard.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	db, err := ledger.OpenSQLite(path)
	if err != nil {
		return nil, nil, err
	}
	return ledger.NewSnapshot(db, ledger.BestOf, ledger.Serialized()), func() { db.Close() }, nil
}

func main() {
	_ = godotenv.Load()
	// tcell owns the terminal.
	log.SetOutput(io.Discard)

	player := strings.Join(os.Args[1:], " ")
	if player == "" {
		player = os.Getenv("PLAYER_NAME")
	}

	l, closeLedger, err := openLedger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open leaderboard: %v\n", err)
		os.Exit(1)
	}
	defer closeLedger()

	game, err := NewGame(l, player)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer game.cleanup()

	game.run(context.Background())
}
