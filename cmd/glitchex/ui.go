package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cl "glitchex/internal/cli"
	"glitchex/internal/game"
	"glitchex/internal/market"

	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptChoice(label string, options []string, defaultValue string) (string, error) {
	normalized := make(map[string]struct{}, len(options))
	for _, opt := range options {
		normalized[strings.ToLower(strings.TrimSpace(opt))] = struct{}{}
	}
	for {
		fmt.Printf("%s (%s) [%s]: ", label, strings.Join(options, "/"), defaultValue)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(defaultValue))
		}
		if _, ok := normalized[text]; ok {
			return text, nil
		}
		printWarn("Invalid option. Please pick one of the listed values.")
	}
}

func promptInt64(label string, min int64) (int64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			printWarn("Enter a whole number.")
			continue
		}
		if v < min {
			printWarn(fmt.Sprintf("Value must be >= %d", min))
			continue
		}
		return v, nil
	}
}

func promptSymbol(label string) (string, error) {
	for {
		symbol, err := promptRequired(label)
		if err != nil {
			return "", err
		}
		symbol = market.NormalizeSymbol(symbol)
		if err := market.ValidateSymbol(symbol); err != nil {
			printWarn(err.Error())
			continue
		}
		return symbol, nil
	}
}

func renderState(st cl.State) {
	accent.Printf("\n== GLITCHEX (tick %d) ==\n", st.Tick)
	fmt.Printf("Balance:      %s\n", formatMicros(st.BalanceMicros))
	fmt.Printf("P/L vs Start: %s\n", colorizeMicros(st.BalanceMicros-st.StartBalanceMicros))
	fmt.Printf("Win Target:   %s (%.0f%%)\n", formatMicros(st.WinBalanceMicros), st.Progress*100)
	fmt.Printf("Integrity:    %s  (%d/%d anomalies)\n", colorizeIntegrity(st.Integrity), st.ActiveAnomalies, st.OverloadMax)
	fmt.Printf("Generator:    %s\n", st.RequestPhase)
	switch {
	case st.Reason != "":
		danger.Printf("GAME OVER: %s\n", st.Reason)
	case st.Warning:
		warn.Printf("Anomalies incoming in %s\n", st.GraceRemaining.Round(time.Second))
	case st.InGrace:
		printInfo(fmt.Sprintf("Grace period: %s left", st.GraceRemaining.Round(time.Second)))
	}
	if st.CompromisedFor > 0 {
		danger.Printf("Every asset compromised for %s\n", st.CompromisedFor.Round(time.Second))
	}

	fmt.Println()
	fmt.Printf("  %-6s %14s %8s %14s %14s  %s\n", "SYMBOL", "PRICE", "QTY", "AVG COST", "P/L", "ANOMALIES")
	for _, a := range st.Assets {
		marker := " "
		if a.Symbol == st.Selected {
			marker = ">"
		}
		fmt.Printf("%s %-6s %14s %8d %14s %14s  %s\n",
			marker,
			a.Symbol,
			formatMicros(a.PriceMicros),
			a.Holdings,
			formatMicros(a.AvgCostMicros),
			colorizeMicros(a.UnrealizedMicros),
			anomalyList(a.Anomalies),
		)
	}

	if len(st.Transactions) > 0 {
		fmt.Println()
		accent.Println("Recent trades")
		for i, tx := range st.Transactions {
			if i == 5 {
				break
			}
			fmt.Printf("  %-4s %-6s x%-4d @ %s  = %s\n", tx.Side, tx.Symbol, tx.Quantity, formatMicros(tx.UnitPriceMicros), formatMicros(tx.TotalMicros))
		}
	}
	fmt.Println()
}

func anomalyList(list []cl.AnomalyState) string {
	if len(list) == 0 {
		return neutral.Sprint("-")
	}
	parts := make([]string, 0, len(list))
	for _, a := range list {
		text := a.Slot + ":" + a.Variant
		switch a.Severity {
		case "severe":
			parts = append(parts, danger.Sprint(text))
		case "medium":
			parts = append(parts, warn.Sprint(text))
		default:
			parts = append(parts, neutral.Sprint(text))
		}
	}
	return strings.Join(parts, " ")
}

func renderTrade(t cl.Trade) {
	tx := t.Transaction
	msg := fmt.Sprintf("%s %d %s @ %s, total %s", tx.Side, tx.Quantity, tx.Symbol, formatMicros(tx.UnitPriceMicros), formatMicros(tx.TotalMicros))
	if t.Reversed {
		printWarn("Control glitched: requested " + string(t.Requested) + ", executed " + string(tx.Side))
	}
	if tx.Multiplier != 1 {
		printWarn(fmt.Sprintf("Price distorted x%g", tx.Multiplier))
	}
	printSuccess(msg)
}

func renderPurge(p cl.Purge) {
	if !p.OK {
		printError(fmt.Sprintf("Nothing to purge: %s has no %s anomaly.", p.Symbol, p.Category))
		return
	}
	printSuccess(fmt.Sprintf("Purged %d %s anomaly(s) on %s.", len(p.Removed), p.Category, p.Symbol))
}

func renderSimReport(rep game.SimReport, startMicros int64) {
	accent.Println("\n== SIMULATION ==")
	outcome := string(rep.Reason)
	if outcome == "" {
		outcome = "tick limit"
	}
	switch rep.Reason {
	case game.ReasonWin:
		success.Printf("Outcome:    %s\n", outcome)
	case game.ReasonNone:
		neutral.Printf("Outcome:    %s\n", outcome)
	default:
		danger.Printf("Outcome:    %s\n", outcome)
	}
	fmt.Printf("Ticks:      %d (%s virtual)\n", rep.Ticks, rep.Elapsed)
	fmt.Printf("Balance:    %s (%s)\n", formatMicros(rep.BalanceMicros), colorizeMicros(rep.BalanceMicros-startMicros))
	fmt.Printf("Trades:     %d filled, %d rejected, %d reversed\n", rep.Trades, rep.Rejected, rep.Reversed)
	fmt.Printf("Anomalies:  %d spawned, peak %d active\n", rep.Spawned, rep.PeakActive)
	fmt.Printf("Purges:     %d hit, %d missed\n", rep.PurgeHits, rep.PurgeMisses)
	fmt.Println()
}

func colorizeMicros(v int64) string {
	text := signedMicros(v)
	switch {
	case v > 0:
		return success.Sprint(text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func colorizeIntegrity(v float64) string {
	text := fmt.Sprintf("%.0f%%", v*100)
	switch {
	case v >= 0.67:
		return success.Sprint(text)
	case v >= 0.34:
		return warn.Sprint(text)
	default:
		return danger.Sprint(text)
	}
}

func formatMicros(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := v / market.MicrosPerUnit
	frac := (v % market.MicrosPerUnit) / 10_000
	return fmt.Sprintf("%s%s.%02d", sign, comma(whole), frac)
}

func signedMicros(v int64) string {
	if v > 0 {
		return "+" + formatMicros(v)
	}
	return formatMicros(v)
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}
