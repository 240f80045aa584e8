// nftledger is a command-line front end to the NFT ownership ledger. Each
// invocation opens the configured database, runs one command and exits.
package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Klingon-tech/klingnet-nft/config"
	"github.com/Klingon-tech/klingnet-nft/internal/metrics"
	"github.com/Klingon-tech/klingnet-nft/internal/node"
	"github.com/Klingon-tech/klingnet-nft/pkg/crypto"
	"github.com/Klingon-tech/klingnet-nft/pkg/types"
)

const version = "0.1.0"

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			usage(os.Stderr)
			os.Exit(2)
		}
		fatal("%v", err)
	}
}

var errUsage = errors.New("usage")

// run executes one command and writes its output to out.
func run(args []string, out io.Writer) error {
	cfg, flags, err := config.Load(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errUsage
		}
		return err
	}
	if flags.Help {
		usage(out)
		return nil
	}
	if flags.Version {
		fmt.Fprintf(out, "nftledger version %s\n", version)
		return nil
	}
	if len(flags.Args) == 0 {
		return errUsage
	}

	cmd, cmdArgs := flags.Args[0], flags.Args[1:]

	// Commands that need no database.
	switch cmd {
	case "help":
		usage(out)
		return nil
	case "account":
		return cmdAccount(out, cmdArgs)
	case "keygen":
		return cmdKeygen(out, cmdArgs)
	}

	n, err := node.New(cfg)
	if err != nil {
		return err
	}
	defer n.Close()

	c := &cli{node: n, out: out}
	switch cmd {
	case "init":
		return c.initRegistry(cmdArgs)
	case "mint":
		return c.mint(cmdArgs)
	case "transfer":
		return c.transfer(cmdArgs)
	case "approve":
		return c.approve(cmdArgs)
	case "burn":
		return c.burn(cmdArgs)
	case "owner":
		return c.owner(cmdArgs)
	case "operator":
		return c.operator(cmdArgs)
	case "token":
		return c.token(cmdArgs)
	case "balance":
		return c.balance(cmdArgs)
	case "supply":
		fmt.Fprintln(out, n.Ledger().TotalSupply())
		return nil
	case "tokens":
		return c.tokens(cmdArgs, false)
	case "operated":
		return c.tokens(cmdArgs, true)
	case "allowance":
		return c.allowance(cmdArgs)
	case "stats":
		return printJSON(out, n.Ledger().Stats())
	case "verify":
		return c.verify()
	case "metrics":
		return c.metrics(cmdArgs)
	case "metadata":
		return c.metadata()
	case "minter":
		fmt.Fprintln(out, n.Registry().Minter())
		return nil
	case "set-minter":
		return c.setMinter(cmdArgs)
	case "add-index":
		return c.addIndex(cmdArgs)
	case "index":
		return c.index()
	default:
		return fmt.Errorf("unknown command %q (see nftledger help)", cmd)
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `Usage: nftledger [global flags] <command> [flags] [args]

Global flags:
  --datadir <path>     Data directory (default: ~/.nftledger)
  --config, -c <file>  Config file (default: <datadir>/nftledger.conf)
  --storage <name>     Storage backend: badger (default) or memory
  --log-level <lvl>    trace, debug, info, warn (default), error
  --log-file <path>    Also write JSON logs to this file
  --log-json           Write logs to stderr as JSON
  --version            Show version

Accounts are given as 64 hex characters or as a hex principal, which maps
to its default subaccount. Callers are given with --caller <principal> or
--key <file>.

Ledger:
  mint [--prop k=v]... <to> <id>     Mint a token
  transfer <from> <to> <id>          Transfer a token
  approve --caller <p> <operator> <id>
                                     Delegate a token to an operator
  burn --caller <p> <id>             Burn a token
  owner <id>                         Show the owner of a token
  operator <id>                      Show the operator of a token
  token <id>                         Show the full token record
  balance <account>                  Number of tokens owned
  tokens <account>                   Tokens owned
  operated <account>                 Tokens operated
  allowance <owner> <spender> <id>   1 if spender operates the token
  supply                             Total tokens ever minted
  stats                              Ledger statistics
  verify                             Check indices and print the state commitment
  metrics [--all]                    Print ledger metrics in Prometheus text format

Registry:
  init --caller <p>                  Initialize the collection
  metadata                           Show collection metadata
  minter                             Show the designated minter
  set-minter --caller <p> <minter>   Designate a new minter
  add-index <index> <account>        Record a token index entry
  index                              List token index entries

Keys:
  keygen <file>                      Create a key file and print its principal
  account <principal>                Derive an account identifier
  account --pubkey <hex>             Derive from a secp256k1 public key
`)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// ── keys ────────────────────────────────────────────────────────────

func cmdAccount(out io.Writer, args []string) error {
	fs := flag.NewFlagSet("account", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	pubHex := fs.String("pubkey", "", "Hex secp256k1 public key")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var p types.Principal
	switch {
	case *pubHex != "":
		pub, err := hex.DecodeString(*pubHex)
		if err != nil {
			return fmt.Errorf("decode public key: %w", err)
		}
		if p, err = crypto.PrincipalFromPubKey(pub); err != nil {
			return err
		}
	case fs.NArg() == 1:
		var err error
		if p, err = types.ParsePrincipal(fs.Arg(0)); err != nil {
			return err
		}
	default:
		return fmt.Errorf("usage: nftledger account <principal> | --pubkey <hex>")
	}

	fmt.Fprintf(out, "Principal: %s\n", p)
	fmt.Fprintf(out, "Account:   %s\n", types.AccountIDOf(p))
	return nil
}

func cmdKeygen(out io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: nftledger keygen <file>")
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return err
	}
	defer key.Zero()
	if err := node.WriteKey(args[0], key); err != nil {
		return err
	}
	p := key.Principal()
	fmt.Fprintf(out, "Principal: %s\n", p)
	fmt.Fprintf(out, "Account:   %s\n", types.AccountIDOf(p))
	return nil
}

// ── ledger and registry ─────────────────────────────────────────────

type cli struct {
	node *node.Node
	out  io.Writer
}

// callerFlags parses --caller/--key ahead of positional arguments.
func callerFlags(name string, args []string) (types.Principal, []string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	caller := fs.String("caller", "", "Caller principal (hex)")
	keyFile := fs.String("key", "", "Caller key file")
	if err := fs.Parse(args); err != nil {
		return "", nil, err
	}
	p, err := node.ResolvePrincipal(*caller, *keyFile)
	if err != nil {
		return "", nil, err
	}
	return p, fs.Args(), nil
}

func (c *cli) printTx(op string, tx uint64) {
	fmt.Fprintf(c.out, "%s ok (tx %d)\n", op, tx)
}

func (c *cli) initRegistry(args []string) error {
	caller, _, err := callerFlags("init", args)
	if err != nil {
		return err
	}
	if err := c.node.InitRegistry(caller); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Initialized; minter is %s\n", caller)
	return nil
}

// propsFlag collects repeated --prop k=v values.
type propsFlag map[string]string

func (p propsFlag) String() string { return fmt.Sprint(map[string]string(p)) }

func (p propsFlag) Set(v string) error {
	k, val, ok := strings.Cut(v, "=")
	if !ok || k == "" {
		return fmt.Errorf("property %q must be key=value", v)
	}
	p[k] = val
	return nil
}

func (c *cli) mint(args []string) error {
	fs := flag.NewFlagSet("mint", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	props := propsFlag{}
	fs.Var(props, "prop", "Token property key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: nftledger mint [--prop k=v]... <to> <id>")
	}
	to, err := node.ResolveAccount(fs.Arg(0))
	if err != nil {
		return err
	}
	id, err := types.ParseTokenID(fs.Arg(1))
	if err != nil {
		return err
	}
	tx, err := c.node.Ledger().Mint(to, id, props)
	if err != nil {
		return err
	}
	c.printTx("mint", tx)
	return nil
}

func (c *cli) transfer(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: nftledger transfer <from> <to> <id>")
	}
	from, err := node.ResolveAccount(args[0])
	if err != nil {
		return err
	}
	to, err := node.ResolveAccount(args[1])
	if err != nil {
		return err
	}
	id, err := types.ParseTokenID(args[2])
	if err != nil {
		return err
	}
	tx, err := c.node.Ledger().Transfer(from, to, id)
	if err != nil {
		return err
	}
	c.printTx("transfer", tx)
	return nil
}

func (c *cli) approve(args []string) error {
	caller, rest, err := callerFlags("approve", args)
	if err != nil {
		return err
	}
	if len(rest) != 2 {
		return fmt.Errorf("usage: nftledger approve --caller <p> <operator> <id>")
	}
	operator, err := node.ResolveAccount(rest[0])
	if err != nil {
		return err
	}
	id, err := types.ParseTokenID(rest[1])
	if err != nil {
		return err
	}
	tx, err := c.node.Ledger().Approve(types.AccountIDOf(caller), operator, id)
	if err != nil {
		return err
	}
	c.printTx("approve", tx)
	return nil
}

func (c *cli) burn(args []string) error {
	caller, rest, err := callerFlags("burn", args)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("usage: nftledger burn --caller <p> <id>")
	}
	id, err := types.ParseTokenID(rest[0])
	if err != nil {
		return err
	}
	tx, err := c.node.Ledger().Burn(types.AccountIDOf(caller), id)
	if err != nil {
		return err
	}
	c.printTx("burn", tx)
	return nil
}

func parseOneID(name string, args []string) (types.TokenID, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("usage: nftledger %s <id>", name)
	}
	return types.ParseTokenID(args[0])
}

func printAccount(w io.Writer, a *types.AccountID) {
	if a == nil {
		fmt.Fprintln(w, "none")
		return
	}
	fmt.Fprintln(w, a.String())
}

func (c *cli) owner(args []string) error {
	id, err := parseOneID("owner", args)
	if err != nil {
		return err
	}
	a, err := c.node.Ledger().OwnerOf(id)
	if err != nil {
		return err
	}
	printAccount(c.out, a)
	return nil
}

func (c *cli) operator(args []string) error {
	id, err := parseOneID("operator", args)
	if err != nil {
		return err
	}
	a, err := c.node.Ledger().OperatorOf(id)
	if err != nil {
		return err
	}
	printAccount(c.out, a)
	return nil
}

func (c *cli) token(args []string) error {
	id, err := parseOneID("token", args)
	if err != nil {
		return err
	}
	rec, err := c.node.Ledger().TokenMetadata(id)
	if err != nil {
		return err
	}
	return printJSON(c.out, rec)
}

func (c *cli) balance(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: nftledger balance <account>")
	}
	a, err := node.ResolveAccount(args[0])
	if err != nil {
		return err
	}
	n, err := c.node.Ledger().BalanceOf(a)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, n)
	return nil
}

func (c *cli) tokens(args []string, operated bool) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: nftledger tokens|operated <account>")
	}
	a, err := node.ResolveAccount(args[0])
	if err != nil {
		return err
	}
	var ids []types.TokenID
	if operated {
		ids, err = c.node.Ledger().OperatorTokenIdentifiers(a)
	} else {
		ids, err = c.node.Ledger().OwnerTokenIdentifiers(a)
	}
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintln(c.out, id)
	}
	return nil
}

func (c *cli) allowance(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: nftledger allowance <owner> <spender> <id>")
	}
	owner, err := node.ResolveAccount(args[0])
	if err != nil {
		return err
	}
	spender, err := node.ResolveAccount(args[1])
	if err != nil {
		return err
	}
	id, err := types.ParseTokenID(args[2])
	if err != nil {
		return err
	}
	n, err := c.node.Ledger().Allowance(owner, spender, id)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, n)
	return nil
}

func (c *cli) verify() error {
	if err := c.node.Ledger().Verify(); err != nil {
		return err
	}
	root, err := c.node.Ledger().Commitment()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "OK\nCommitment: %s\n", root)
	return nil
}

func (c *cli) metrics(args []string) error {
	fs := flag.NewFlagSet("metrics", flag.ContinueOnError)
	all := fs.Bool("all", false, "Include runtime and process metrics")
	if err := fs.Parse(args); err != nil {
		return err
	}
	prefix := metrics.Prefix
	if *all {
		prefix = ""
	}
	return metrics.WriteText(c.out, prometheus.DefaultGatherer, prefix)
}

func (c *cli) metadata() error {
	meta, err := c.node.Registry().Metadata()
	if err != nil {
		return err
	}
	return printJSON(c.out, meta)
}

func (c *cli) setMinter(args []string) error {
	caller, rest, err := callerFlags("set-minter", args)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("usage: nftledger set-minter --caller <p> <minter>")
	}
	minter, err := types.ParsePrincipal(rest[0])
	if err != nil {
		return err
	}
	if err := c.node.Registry().SetMinter(caller, minter); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Minter set to %s\n", minter)
	return nil
}

func (c *cli) addIndex(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: nftledger add-index <index> <account>")
	}
	idx, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid index %q: %w", args[0], err)
	}
	return c.node.Registry().AddIndex(uint32(idx), args[1])
}

func (c *cli) index() error {
	entries := c.node.Registry().Index()
	keys := make([]uint32, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		fmt.Fprintf(c.out, "%d\t%s\n", k, entries[k])
	}
	return nil
}
