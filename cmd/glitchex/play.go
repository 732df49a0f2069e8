package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"glitchex/internal/anomaly"
	"glitchex/internal/config"
	"glitchex/internal/game"
	"glitchex/internal/glitchgen"
	"glitchex/internal/market"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	primaryColor = lipgloss.Color("#7C3AED")
	buyColor     = lipgloss.Color("#10B981")
	sellColor    = lipgloss.Color("#EF4444")
	warnColor    = lipgloss.Color("#F59E0B")
	mutedColor   = lipgloss.Color("#6B7280")
	neonColor    = lipgloss.Color("#FF00FF")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	warnStyle    = lipgloss.NewStyle().Bold(true).Foreground(warnColor)
	dangerStyle  = lipgloss.NewStyle().Bold(true).Foreground(sellColor)
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(buyColor)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#374151")).
			Padding(0, 1)
	selectedPanelStyle = panelStyle.BorderForeground(primaryColor)

	buttonStyle = lipgloss.NewStyle().Padding(0, 1).Bold(true)
)

type keyMap struct {
	Prev        key.Binding
	Next        key.Binding
	Buy         key.Binding
	Sell        key.Binding
	More        key.Binding
	Less        key.Binding
	PurgeButton key.Binding
	PurgeChart  key.Binding
	Restart     key.Binding
	Quit        key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Prev, k.Next, k.Buy, k.Sell, k.PurgeButton, k.PurgeChart, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Prev, k.Next},
		{k.Buy, k.Sell, k.More, k.Less},
		{k.PurgeButton, k.PurgeChart},
		{k.Restart, k.Quit},
	}
}

var keys = keyMap{
	Prev:        key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "prev asset")),
	Next:        key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "next asset")),
	Buy:         key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "buy")),
	Sell:        key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "sell")),
	More:        key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "qty up")),
	Less:        key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "qty down")),
	PurgeButton: key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "purge buttons")),
	PurgeChart:  key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "purge chart")),
	Restart:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "restart")),
	Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

func newPlayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "Play in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			// The alternate screen owns the terminal.
			logger := newLogger(cfg, io.Discard)
			sess, err := newSession(cfg, logger, nil)
			if err != nil {
				return err
			}
			runner := game.NewRunner(sess, cfg.TickEvery, logger)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- runner.Run(ctx) }()

			updates, unsubscribe := runner.Subscribe(4)
			defer unsubscribe()

			_, err = tea.NewProgram(newPlayModel(ctx, runner, updates), tea.WithAltScreen()).Run()
			cancel()
			if runErr := <-done; err == nil {
				err = runErr
			}
			return err
		},
	}
}

type snapshotMsg game.Snapshot

type statusMsg struct {
	text string
	bad  bool
}

type streamClosedMsg struct{}

type playModel struct {
	ctx     context.Context
	runner  *game.Runner
	updates <-chan game.Snapshot

	snap   game.Snapshot
	ready  bool
	qty    int64
	status statusMsg

	keys  keyMap
	help  help.Model
	width int
}

func newPlayModel(ctx context.Context, runner *game.Runner, updates <-chan game.Snapshot) *playModel {
	return &playModel{
		ctx:     ctx,
		runner:  runner,
		updates: updates,
		qty:     1,
		keys:    keys,
		help:    help.New(),
	}
}

func (m *playModel) Init() tea.Cmd {
	return tea.Batch(m.waitForSnapshot(), m.refresh())
}

func (m *playModel) waitForSnapshot() tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-m.updates
		if !ok {
			return streamClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}

func (m *playModel) refresh() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.runner.Snapshot(m.ctx)
		if err != nil {
			return statusMsg{text: err.Error(), bad: true}
		}
		return snapshotMsg(snap)
	}
}

func (m *playModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case snapshotMsg:
		m.snap = game.Snapshot(msg)
		m.ready = true
		return m, m.waitForSnapshot()

	case statusMsg:
		m.status = msg

	case streamClosedMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Prev):
			return m, m.selectOffset(-1)
		case key.Matches(msg, m.keys.Next):
			return m, m.selectOffset(1)
		case key.Matches(msg, m.keys.More):
			m.qty++
		case key.Matches(msg, m.keys.Less):
			if m.qty > 1 {
				m.qty--
			}
		case key.Matches(msg, m.keys.Buy):
			return m, m.trade(market.SideBuy)
		case key.Matches(msg, m.keys.Sell):
			return m, m.trade(market.SideSell)
		case key.Matches(msg, m.keys.PurgeButton):
			return m, m.purge(anomaly.CategoryButton)
		case key.Matches(msg, m.keys.PurgeChart):
			return m, m.purge(anomaly.CategoryChart)
		case key.Matches(msg, m.keys.Restart):
			return m, m.restart()
		case msg.String() == "?":
			m.help.ShowAll = !m.help.ShowAll
		}
	}
	return m, nil
}

func (m *playModel) selectOffset(delta int) tea.Cmd {
	n := len(m.snap.Assets)
	if n == 0 {
		return nil
	}
	idx := 0
	for i, a := range m.snap.Assets {
		if a.Symbol == m.snap.Selected {
			idx = i
		}
	}
	symbol := m.snap.Assets[(idx+delta+n)%n].Symbol
	return func() tea.Msg {
		if err := m.runner.Select(m.ctx, symbol); err != nil {
			return statusMsg{text: err.Error(), bad: true}
		}
		return statusMsg{text: "selected " + symbol}
	}
}

func (m *playModel) trade(side market.Side) tea.Cmd {
	symbol, qty := m.snap.Selected, m.qty
	return func() tea.Msg {
		var (
			res game.TradeResult
			err error
		)
		if side == market.SideBuy {
			res, err = m.runner.Buy(m.ctx, symbol, qty)
		} else {
			res, err = m.runner.Sell(m.ctx, symbol, qty)
		}
		if err != nil {
			return statusMsg{text: err.Error(), bad: true}
		}
		tx := res.Transaction
		text := fmt.Sprintf("%s %d %s for %s", tx.Side, tx.Quantity, tx.Symbol, formatMicros(tx.TotalMicros))
		if res.Reversed {
			text = "glitch! requested " + string(res.Requested) + ": " + text
		}
		return statusMsg{text: text, bad: res.Reversed || tx.Multiplier != 1}
	}
}

func (m *playModel) purge(cat anomaly.Category) tea.Cmd {
	return func() tea.Msg {
		res, err := m.runner.Purge(m.ctx, string(cat))
		if err != nil {
			return statusMsg{text: err.Error(), bad: true}
		}
		if !res.OK {
			return statusMsg{text: fmt.Sprintf("no %s anomaly on %s", cat, res.Symbol), bad: true}
		}
		return statusMsg{text: fmt.Sprintf("purged %d %s anomaly(s) on %s", len(res.Removed), cat, res.Symbol)}
	}
}

func (m *playModel) restart() tea.Cmd {
	return func() tea.Msg {
		if err := m.runner.Restart(m.ctx); err != nil {
			return statusMsg{text: err.Error(), bad: true}
		}
		return statusMsg{text: "new game"}
	}
}

func (m *playModel) View() string {
	if !m.ready {
		return "Booting exchange..."
	}
	s := m.snap

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render("GLITCHEX"),
		"  ",
		fmt.Sprintf("balance %s  target %s  ", formatMicros(s.BalanceMicros), formatMicros(s.WinBalanceMicros)),
		progressBar(s.Progress, 20),
		"  ",
		integrityLabel(s.Integrity, s.ActiveAnomalies, s.OverloadMax),
	)

	var banner string
	switch {
	case s.Reason.Terminal():
		banner = dangerStyle.Render("GAME OVER: "+string(s.Reason)) + mutedStyle.Render("  press r to restart")
	case s.CompromisedFor > 0:
		banner = dangerStyle.Render(fmt.Sprintf("ALL ASSETS COMPROMISED %.0fs", s.CompromisedFor.Seconds()))
	case s.Warning:
		banner = warnStyle.Render(fmt.Sprintf("anomalies incoming in %.0fs", s.GraceRemaining.Seconds()))
	case s.InGrace:
		banner = mutedStyle.Render(fmt.Sprintf("grace period %.0fs", s.GraceRemaining.Seconds()))
	default:
		banner = mutedStyle.Render("generator " + s.RequestPhase.String())
	}

	panels := make([]string, 0, len(s.Assets))
	for _, a := range s.Assets {
		panels = append(panels, m.assetPanel(a, a.Symbol == s.Selected))
	}
	grid := lipgloss.JoinHorizontal(lipgloss.Top, panels...)

	status := mutedStyle.Render(fmt.Sprintf("qty %d", m.qty))
	if m.status.text != "" {
		style := successStyle
		if m.status.bad {
			style = warnStyle
		}
		status += "  " + style.Render(m.status.text)
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, banner, grid, status, m.help.View(m.keys))
}

func (m *playModel) assetPanel(a game.AssetSnapshot, selected bool) string {
	var buy, sell, chart *anomaly.Anomaly
	for i := range a.Anomalies {
		switch a.Anomalies[i].Slot {
		case anomaly.SlotBuy:
			buy = &a.Anomalies[i]
		case anomaly.SlotSell:
			sell = &a.Anomalies[i]
		case anomaly.SlotChart:
			chart = &a.Anomalies[i]
		}
	}

	style := panelStyle
	if selected {
		style = selectedPanelStyle
	}
	if chart != nil && chart.Variant == anomaly.VariantNoGrid {
		style = style.Border(lipgloss.HiddenBorder())
	}

	lines := []string{
		titleStyle.Render(a.Symbol) + " " + priceLabel(a.PriceMicros, chart),
		renderChart(a.History, chart, 18),
		fmt.Sprintf("hold %d  avg %s", a.Holdings, formatMicros(a.AvgCostMicros)),
		"p/l " + signedMicros(a.UnrealizedMicros),
		lipgloss.JoinHorizontal(lipgloss.Top,
			renderButton(anomaly.SlotBuy, buy, m.snap.Tick),
			" ",
			renderButton(anomaly.SlotSell, sell, m.snap.Tick),
		),
	}
	return style.Render(strings.Join(lines, "\n"))
}

func priceLabel(price int64, chart *anomaly.Anomaly) string {
	if chart != nil && chart.Variant == anomaly.VariantNoAxis {
		return mutedStyle.Render("?.??")
	}
	return formatMicros(price)
}

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

func renderChart(history []market.PricePoint, chart *anomaly.Anomaly, width int) string {
	if len(history) > width {
		history = history[len(history)-width:]
	}
	if len(history) == 0 {
		return strings.Repeat(" ", width)
	}
	if chart != nil && chart.Variant == anomaly.VariantFlatline {
		return dangerStyle.Render(strings.Repeat("─", len(history)))
	}
	lo, hi := history[0].PriceMicros, history[0].PriceMicros
	for _, p := range history {
		lo = min(lo, p.PriceMicros)
		hi = max(hi, p.PriceMicros)
	}
	var b strings.Builder
	for _, p := range history {
		idx := 0
		if hi > lo {
			idx = int((p.PriceMicros - lo) * int64(len(sparkLevels)-1) / (hi - lo))
		}
		b.WriteRune(sparkLevels[idx])
	}
	line := b.String()
	if chart != nil && chart.Variant == anomaly.VariantNeon {
		return lipgloss.NewStyle().Foreground(neonColor).Bold(true).Render(line)
	}
	return lipgloss.NewStyle().Foreground(buyColor).Render(line)
}

func renderButton(slot anomaly.Slot, a *anomaly.Anomaly, tick int64) string {
	label := "Buy"
	bg := buyColor
	if slot == anomaly.SlotSell {
		label, bg = "Sell", sellColor
	}
	if a == nil {
		return buttonStyle.Background(bg).Render(label)
	}
	if c, ok := a.Descriptor.(glitchgen.Control); ok && c.Label != "" {
		label = c.Label
	}
	style := buttonStyle.Background(bg)
	switch a.Variant {
	case anomaly.VariantRed:
		style = buttonStyle.Background(sellColor)
	case anomaly.VariantGreen:
		style = buttonStyle.Background(buyColor)
	case anomaly.VariantGhost:
		style = buttonStyle.Faint(true).Foreground(mutedColor)
	case anomaly.VariantJitter, anomaly.VariantBounce:
		if tick%2 == 1 {
			style = style.MarginLeft(1)
		}
	case anomaly.VariantReverse:
		style = style.Reverse(true)
	}
	return style.Render(label)
}

func progressBar(progress float64, width int) string {
	filled := int(progress * float64(width))
	filled = max(0, min(width, filled))
	return successStyle.Render(strings.Repeat("█", filled)) + mutedStyle.Render(strings.Repeat("░", width-filled))
}

func integrityLabel(integrity float64, active, maxActive int) string {
	text := fmt.Sprintf("integrity %.0f%% (%d/%d)", integrity*100, active, maxActive)
	switch {
	case integrity >= 0.67:
		return successStyle.Render(text)
	case integrity >= 0.34:
		return warnStyle.Render(text)
	default:
		return dangerStyle.Render(text)
	}
}
