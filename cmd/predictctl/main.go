// predictctl inspects the store and operates a running daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/auth"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/config"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/ledger"
	fpmath "github.com/gcdeng/eth-price-prediction-dapp/internal/math"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/persistence"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/server"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

func usage() {
	fmt.Println("Usage: predictctl [-config predict.yaml] <command> [args]")
	fmt.Println()
	fmt.Println("Store commands:")
	fmt.Println("  rounds [-after N] [-limit N]   list rounds")
	fmt.Println("  bets <address>                 list a participant's bets")
	fmt.Println("  treasury                       show treasury and ledger balances")
	fmt.Println("  journal <epoch>                show ledger journal rows of a round")
	fmt.Println("  verify-chain                   re-verify the event hash chain")
	fmt.Println()
	fmt.Println("Daemon commands:")
	fmt.Println("  token <address> [-admin]       issue a bearer token")
	fmt.Println("  start [-live S] [-lock S]      start a round (admin)")
	fmt.Println("  lock | end | drain             lock, end the round or claim the treasury (admin)")
	fmt.Println("  status                         show the daemon's current round")
}

type cli struct {
	cfg *config.Config
}

func main() {
	configPath := flag.String("config", "predict.yaml", "path to the YAML config file")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	c := &cli{cfg: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	args := flag.Args()[1:]
	switch flag.Arg(0) {
	case "rounds":
		err = c.rounds(ctx, args)
	case "bets":
		err = c.bets(ctx, args)
	case "treasury":
		err = c.treasury(ctx)
	case "journal":
		err = c.journal(ctx, args)
	case "verify-chain":
		err = c.verifyChain(ctx)
	case "token":
		err = c.token(args)
	case "start", "lock", "end", "drain":
		err = c.admin(ctx, flag.Arg(0), args)
	case "status":
		err = c.status(ctx)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}
}

// --- Store commands ---

func (c *cli) openStore(ctx context.Context) (*persistence.Store, func(), error) {
	dialect, err := persistence.ParseDialect(c.cfg.Storage.Driver)
	if err != nil {
		return nil, nil, err
	}
	db, err := persistence.Open(ctx, dialect, c.cfg.Storage.DSN)
	if err != nil {
		return nil, nil, err
	}
	return persistence.NewStore(db, dialect, nil), func() { db.Close() }, nil
}

func (c *cli) price(v int64) string {
	if v == 0 {
		return "-"
	}
	return fpmath.FormatFixed(v, c.cfg.Display.PriceDecimals)
}

func (c *cli) amount(v uint64) string {
	return fpmath.FormatAmount(v, c.cfg.Display.AmountDecimals)
}

func (c *cli) rounds(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rounds", flag.ExitOnError)
	after := fs.Uint64("after", 0, "list epochs after this one")
	limit := fs.Int("limit", 50, "maximum rounds")
	fs.Parse(args)

	store, closeFn, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	rounds, err := store.ListRounds(ctx, *after, *limit)
	if err != nil {
		return err
	}
	now := time.Now().Unix()

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Epoch", "Status", "Lock at", "Close at", "Lock price", "Close price", "Bull", "Bear", "Total", "Reward")
	for _, r := range rounds {
		table.Append(
			strconv.FormatUint(r.Epoch, 10),
			r.Status(now).String(),
			time.Unix(r.LockTimestamp, 0).UTC().Format(time.DateTime),
			time.Unix(r.CloseTimestamp, 0).UTC().Format(time.DateTime),
			c.price(r.LockPrice),
			c.price(r.ClosePrice),
			c.amount(r.BullAmount),
			c.amount(r.BearAmount),
			c.amount(r.TotalAmount),
			c.amount(r.RewardAmount),
		)
	}
	return table.Render()
}

func (c *cli) bets(ctx context.Context, args []string) error {
	if len(args) < 1 || !common.IsHexAddress(args[0]) {
		return fmt.Errorf("usage: bets <address>")
	}
	store, closeFn, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	bets, err := store.BetsByParticipant(ctx, common.HexToAddress(args[0]))
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Epoch", "Position", "Amount", "Claimed")
	for _, b := range bets {
		table.Append(
			strconv.FormatUint(b.Epoch, 10),
			b.Position.String(),
			c.amount(b.Amount),
			strconv.FormatBool(b.Claimed),
		)
	}
	return table.Render()
}

func (c *cli) treasury(ctx context.Context) error {
	store, closeFn, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	st, err := store.Load(ctx, 0)
	if err != nil {
		return err
	}
	fmt.Printf("treasury: %s (sequence %d)\n", c.amount(st.Treasury), st.Sequence)

	balances, err := store.Balances(ctx)
	if err != nil {
		return err
	}
	paths := make([]string, 0, len(balances))
	byPath := make(map[string]int64, len(balances))
	for key, bal := range balances {
		paths = append(paths, key.AccountPath())
		byPath[key.AccountPath()] = bal
	}
	sort.Strings(paths)

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Account", "Balance")
	for _, p := range paths {
		table.Append(p, fpmath.FormatFixed(byPath[p], c.cfg.Display.AmountDecimals))
	}
	return table.Render()
}

func (c *cli) journal(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: journal <epoch>")
	}
	epoch, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("epoch: %w", err)
	}
	store, closeFn, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	rows, err := store.JournalForEpoch(ctx, epoch)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Seq", "Type", "Debit", "Credit", "Amount")
	for _, r := range rows {
		table.Append(
			strconv.FormatInt(r.Sequence, 10),
			ledger.JournalType(r.JournalType).String(),
			r.DebitAccount,
			r.CreditAccount,
			fpmath.FormatFixed(r.Amount, c.cfg.Display.AmountDecimals),
		)
	}
	return table.Render()
}

func (c *cli) verifyChain(ctx context.Context) error {
	store, closeFn, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	tip, n, err := store.VerifyEventLog(ctx, 1000)
	if err != nil {
		return fmt.Errorf("chain broken after %d events: %w", n, err)
	}
	fmt.Printf("verified %d events, tip %x\n", n, tip)
	return nil
}

// --- Daemon commands ---

func (c *cli) jwt() auth.JWT {
	return auth.JWT{Secret: []byte(c.cfg.Auth.JWTSecret), TokenTTL: c.cfg.Auth.TokenTTL}
}

func (c *cli) token(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	admin := fs.Bool("admin", false, "issue an admin token")
	if len(args) < 1 || !common.IsHexAddress(args[0]) {
		return fmt.Errorf("usage: token <address> [-admin]")
	}
	fs.Parse(args[1:])

	role := auth.RoleParticipant
	if *admin {
		role = auth.RoleAdmin
	}
	tok, exp, err := c.jwt().Issue(common.HexToAddress(args[0]), role)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	fmt.Fprintf(os.Stderr, "expires %s\n", exp.Format(time.RFC3339))
	return nil
}

// dial connects to the daemon with an admin token for the configured admin
// address attached to every call.
func (c *cli) dial(ctx context.Context) (*server.PredictionClient, context.Context, func(), error) {
	tok, _, err := c.jwt().Issue(c.cfg.Admin(), auth.RoleAdmin)
	if err != nil {
		return nil, nil, nil, err
	}
	target := c.cfg.Server.GRPCAddr
	if strings.HasPrefix(target, ":") {
		target = "localhost" + target
	}
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, nil, err
	}
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+tok)
	return server.NewPredictionClient(conn), ctx, func() { conn.Close() }, nil
}

func (c *cli) admin(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	live := fs.Int64("live", c.cfg.Keeper.LiveSeconds, "seconds until lock")
	lock := fs.Int64("lock", c.cfg.Keeper.LockSeconds, "seconds from lock to close")
	fs.Parse(args)

	client, ctx, closeFn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	req := &server.AdminRequest{RequestID: uuid.NewString()}
	var resp *server.CommandResponse
	switch cmd {
	case "start":
		resp, err = client.StartRound(ctx, &server.StartRoundRequest{RequestID: req.RequestID, LiveSeconds: *live, LockSeconds: *lock})
	case "lock":
		resp, err = client.LockRound(ctx, req)
	case "end":
		resp, err = client.EndRound(ctx, req)
	case "drain":
		resp, err = client.ClaimTreasury(ctx, req)
	}
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Epoch", "Oracle round", "Price", "Amount")
	table.Append(
		strconv.FormatUint(resp.Epoch, 10),
		resp.OracleRoundID,
		c.price(resp.Price),
		c.amount(resp.Amount),
	)
	return table.Render()
}

func (c *cli) status(ctx context.Context) error {
	client, ctx, closeFn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	st, err := client.GetStatus(ctx)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Epoch", "Status", "Treasury", "Oracle round", "Sequence")
	table.Append(
		strconv.FormatUint(st.CurrentEpoch, 10),
		st.CurrentStatus,
		c.amount(st.Treasury),
		st.OracleRoundID,
		strconv.FormatInt(st.AsOfSequence, 10),
	)
	return table.Render()
}
