package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	cl "tototycoon/internal/cli"
	"tototycoon/internal/config"
	"tototycoon/internal/game"
	"tototycoon/internal/identity"
)

type app struct {
	cfg       config.ClientConfig
	initData  string
	launchURL string
	verbose   bool
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	cfg, err := config.LoadClientFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	a := &app{cfg: cfg}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:          "toto",
		Short:        "TOTO Tycoon terminal client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&a.initData, "init-data", "", "signed host init data (overrides TOTO_INIT_DATA)")
	root.PersistentFlags().StringVar(&a.launchURL, "launch-url", "", "launch URL carrying ?start=ref_<id> (overrides TOTO_LAUNCH_URL)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log sync activity to stderr")

	root.AddCommand(
		a.newStatusCmd(),
		a.newMineCmd(),
		a.newBuyCmd(),
		a.newSubscribeCmd(),
		a.newVenturesCmd(),
		a.newTeamCmd(),
		a.newLeaderboardCmd(),
		a.newPlayCmd(),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) logger() *slog.Logger {
	if !a.verbose {
		return slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// withSession opens a session, runs fn and always flushes on the way out.
func (a *app) withSession(cmd *cobra.Command, fn func(ctx context.Context, s *cl.Session) error) error {
	ctx := cmd.Context()
	s, err := cl.OpenSession(ctx, a.cfg, cl.SessionOptions{
		InitData:  a.initData,
		LaunchURL: a.launchURL,
		Logger:    a.logger(),
	})
	if err != nil {
		return err
	}
	runErr := fn(ctx, s)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := s.Close(closeCtx); err != nil {
		printWarn("Progress saved on this device; cloud sync will retry next time.")
	}
	return runErr
}

func (a *app) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show your balance, rank and ventures",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *cl.Session) error {
				rec, _ := s.State()
				renderStatus(rec, s.Engine(), time.Now())
				return nil
			})
		},
	}
}

func (a *app) newMineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mine",
		Short: "Mine coins (once per cooldown)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *cl.Session) error {
				return mineOnce(ctx, s)
			})
		},
	}
}

func mineOnce(ctx context.Context, s *cl.Session) error {
	before, _ := s.State()
	after, err := s.Mine(ctx)
	if errors.Is(err, game.ErrMineCooldown) {
		wait := time.Until(time.UnixMilli(s.Engine().NextMineAt(before))).Round(time.Second)
		printWarn(fmt.Sprintf("Cooling down, mine again in %s.", wait))
		return nil
	}
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("+%s coins mined. Balance: %s", comma(after.Coins-before.Coins), comma(after.Coins)))
	return nil
}

func (a *app) newBuyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "buy [venture]",
		Short: "Buy a venture for passive income",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *cl.Session) error {
				id := ""
				if len(args) == 1 {
					id = args[0]
				} else {
					renderVentures(currentState(s))
					picked, err := promptVenture()
					if err != nil {
						return err
					}
					id = picked
				}
				return buyVenture(ctx, s, id)
			})
		},
	}
}

func buyVenture(ctx context.Context, s *cl.Session, raw string) error {
	v, ok := matchVenture(raw)
	if !ok {
		printError(fmt.Sprintf("Unknown venture %q. Run `toto ventures` for the list.", raw))
		return nil
	}
	rec, err := s.Buy(ctx, v.ID)
	if errors.Is(err, game.ErrInsufficientFunds) {
		printWarn(fmt.Sprintf("%s costs %s coins, you have %s.", v.Name, comma(v.Cost), comma(rec.Coins)))
		return nil
	}
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Bought %s. You now own %d. Balance: %s", v.Name, rec.Businesses[v.ID], comma(rec.Coins)))
	return nil
}

func (a *app) newSubscribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe",
		Short: "Toggle the channel subscription flag",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *cl.Session) error {
				rec, err := s.ToggleSubscription(ctx)
				if err != nil {
					return err
				}
				if rec.Subscribed {
					printSuccess("Subscribed.")
				} else {
					printInfo("Unsubscribed.")
				}
				return nil
			})
		},
	}
}

func (a *app) newVenturesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "ventures",
		Short:   "List ventures with price, income and how many you own",
		Aliases: []string{"shop"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *cl.Session) error {
				renderVentures(currentState(s))
				return nil
			})
		},
	}
}

func (a *app) newTeamCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "team",
		Short: "Show your referral link and earnings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *cl.Session) error {
				renderTeam(currentState(s), a.cfg.BotUsername)
				return nil
			})
		},
	}
}

func (a *app) newLeaderboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *cl.Session) error {
				renderLeaderboard(currentState(s))
				return nil
			})
		},
	}
}

func (a *app) newPlayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "Interactive game loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *cl.Session) error {
				res := s.Resolution()
				if res.Guest {
					printWarn(guestNotice)
				}
				renderStatus(currentState(s), s.Engine(), time.Now())
				for {
					choice, err := promptChoice("Action", []string{"mine", "buy", "subscribe", "status", "ventures", "team", "quit"}, "mine")
					if err != nil {
						if errors.Is(err, io.EOF) {
							return nil
						}
						return err
					}
					if ctx.Err() != nil {
						return nil
					}
					switch choice {
					case "mine":
						err = mineOnce(ctx, s)
					case "buy":
						renderVentures(currentState(s))
						var id string
						if id, err = promptVenture(); err == nil {
							err = buyVenture(ctx, s, id)
						}
					case "subscribe":
						_, err = s.ToggleSubscription(ctx)
					case "status":
						renderStatus(currentState(s), s.Engine(), time.Now())
					case "ventures":
						renderVentures(currentState(s))
					case "team":
						renderTeam(currentState(s), a.cfg.BotUsername)
					case "quit":
						return nil
					}
					if err != nil {
						return err
					}
				}
			})
		},
	}
}

// guestNotice is shown when no host identity was found. Guest sessions always
// start from a fresh record.
const guestNotice = "Playing as guest. Guest progress is not kept between sessions; open the game from Telegram to save it."

// currentState returns the in-memory record; sessions are bootstrapped before
// any command body runs.
func currentState(s *cl.Session) game.PlayerRecord {
	rec, _ := s.State()
	return rec
}

// matchVenture accepts a catalog id or name, case-insensitively.
func matchVenture(raw string) (game.Venture, bool) {
	raw = strings.TrimSpace(raw)
	for _, v := range game.Catalog {
		if strings.EqualFold(v.ID, raw) || strings.EqualFold(v.Name, raw) {
			return v, true
		}
	}
	return game.Venture{}, false
}

func referralLink(botUsername string, rec game.PlayerRecord) string {
	if rec.IsGuest() {
		return ""
	}
	return identity.ReferralLink(botUsername, rec.ID)
}
