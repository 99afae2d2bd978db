package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/mdp/qrterminal/v3"
	"golang.org/x/term"

	"tototycoon/internal/game"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

var (
	cardStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("36")).Padding(0, 2)
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
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

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func terminalWidth() int {
	if !stdoutIsTerminal() {
		return 80
	}
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

func card(title string, lines ...string) string {
	body := titleStyle.Render(title) + "\n" + strings.Join(lines, "\n")
	width := terminalWidth() - 4
	if width > 60 {
		width = 60
	}
	return cardStyle.Width(width).Render(body)
}

func promptChoice(label string, options []string, defaultValue string) (string, error) {
	normalized := make(map[string]string, len(options)*2)
	for _, opt := range options {
		opt = strings.ToLower(strings.TrimSpace(opt))
		normalized[opt] = opt
		// first letter works as a shortcut when it is unambiguous
		if _, taken := normalized[opt[:1]]; !taken {
			normalized[opt[:1]] = opt
		}
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
		if opt, ok := normalized[text]; ok {
			return opt, nil
		}
		printWarn("Invalid option. Please pick one of the listed values.")
	}
}

func promptVenture() (string, error) {
	for {
		fmt.Print("Venture (id or name): ")
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn("Venture is required.")
	}
}

func renderStatus(rec game.PlayerRecord, engine *game.Engine, now time.Time) {
	mineLine := success.Sprint("ready")
	if next := time.UnixMilli(engine.NextMineAt(rec)); next.After(now) {
		mineLine = warn.Sprintf("in %s", next.Sub(now).Round(time.Second))
	}
	sub := "no"
	if rec.Subscribed {
		sub = "yes"
	}
	fmt.Println(card(
		rec.Username,
		fmt.Sprintf("Balance:        %s coins", comma(rec.Coins)),
		fmt.Sprintf("Rank:           %s", game.LevelLabel(rec.Coins)),
		fmt.Sprintf("Passive income: +%s per mine", comma(game.PassiveIncome(rec.Businesses))),
		fmt.Sprintf("Ventures owned: %d", rec.TotalVentures()),
		fmt.Sprintf("Next mine:      %s", mineLine),
		fmt.Sprintf("Subscribed:     %s", sub),
	))
}

func renderVentures(rec game.PlayerRecord) {
	accent.Println("\n== VENTURES ==")
	fmt.Printf("%-14s %-20s %12s %8s %6s\n", "ID", "NAME", "COST", "INCOME", "OWNED")
	for _, v := range game.Catalog {
		cost := comma(v.Cost)
		if rec.Coins < v.Cost {
			cost = danger.Sprint(cost)
		} else {
			cost = success.Sprint(cost)
		}
		fmt.Printf("%-14s %-20s %12s %8s %6d\n", v.ID, truncate(v.Name, 20), cost, "+"+comma(v.Income), rec.Businesses[v.ID])
	}
	fmt.Println()
}

func renderTeam(rec game.PlayerRecord, botUsername string) {
	link := referralLink(botUsername, rec)
	if link == "" {
		printWarn("Guests have no referral link. Launch from Telegram to recruit your team.")
		return
	}
	fmt.Println(card(
		"Your team",
		fmt.Sprintf("Friends joined:  %d", rec.ReferralsCount),
		fmt.Sprintf("Bonus earned:    %s coins", comma(game.ReferralEarnings(rec.ReferralsCount))),
		fmt.Sprintf("Per friend:      %s coins", comma(game.ReferralBonus)),
		"",
		link,
	))
	if stdoutIsTerminal() {
		qrterminal.GenerateHalfBlock(link, qrterminal.L, os.Stdout)
	}
}

// renderLeaderboard shows only the local player; there is no global ranking
// endpoint.
func renderLeaderboard(rec game.PlayerRecord) {
	accent.Println("\n== LEADERBOARD ==")
	fmt.Printf("%-4s %-20s %14s %-10s\n", "#", "PLAYER", "COINS", "RANK")
	fmt.Printf("%-4d %-20s %14s %-10s\n", 1, truncate(rec.Username, 20), comma(rec.Coins), game.LevelLabel(rec.Coins))
	fmt.Println()
}

func comma(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	raw := fmt.Sprintf("%d", v)
	if len(raw) <= 3 {
		return sign + raw
	}
	var b strings.Builder
	pre := len(raw) % 3
	if pre > 0 {
		b.WriteString(raw[:pre])
		if len(raw) > pre {
			b.WriteString(",")
		}
	}
	for i := pre; i < len(raw); i += 3 {
		b.WriteString(raw[i : i+3])
		if i+3 < len(raw) {
			b.WriteString(",")
		}
	}
	return sign + b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
