// Command expensectl is a terminal client for the expenses API.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"expenses/internal/client"
	"expenses/internal/core"
	"expenses/internal/dashboard"
)

const defaultServer = "http://localhost:8000"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %s\n", errorMessage(err))
		os.Exit(1)
	}
}

// errorMessage prefers the server's envelope message.
func errorMessage(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if errors.Is(err, client.ErrNoSession) {
		return "not logged in, run: expensectl login"
	}
	return err.Error()
}

type app struct {
	client *client.Client
	stdin  io.Reader
	in     *bufio.Reader
	stdout io.Writer
	stderr io.Writer
}

type command struct {
	name    string
	usage   string
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

// commands is filled in init because the command funcs refer back to it
// through app.flags, which would otherwise be an initialization cycle.
var commands []command

func init() {
	commands = []command{
		{"register", "-username <name> -email <email> [-password <pw>]", "create an account", cmdRegister},
		{"login", "-email <email> [-password <pw>]", "log in and store the session", cmdLogin},
		{"logout", "", "log out and forget the session", cmdLogout},
		{"whoami", "", "show the logged in user", cmdWhoami},
		{"refresh", "", "renew the stored tokens", cmdRefresh},
		{"add", "-amount <n> -category <c> -description <text> [-custom <name>] [-date YYYY-MM-DD]", "record an expense", cmdAdd},
		{"list", "", "list expenses, newest first", cmdList},
		{"edit", "<id> [-amount <n>] [-category <c>] [-custom <name>] [-description <text>] [-date YYYY-MM-DD]", "change an expense", cmdEdit},
		{"rm", "<id>", "delete an expense", cmdRemove},
		{"dashboard", "[-year <yyyy>] [-month <1-12>]", "totals by category and over time", cmdDashboard},
		{"delete-account", "[-yes]", "delete the account and all its expenses", cmdDeleteAccount},
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("expensectl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(stderr, fs) }

	server := fs.String("server", envOr("EXPENSES_URL", defaultServer), "API base URL")
	sessionPath := fs.String("session", os.Getenv("EXPENSES_SESSION"), "session file (default: user config dir)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		usage(stderr, fs)
		return errors.New("missing command")
	}

	name := fs.Arg(0)
	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
			break
		}
	}
	if cmd == nil {
		usage(stderr, fs)
		return fmt.Errorf("unknown command %q", name)
	}

	path := *sessionPath
	if path == "" {
		var err error
		if path, err = client.DefaultSessionPath(); err != nil {
			return err
		}
	}
	c, err := client.New(*server, client.NewFileSession(path))
	if err != nil {
		return err
	}

	a := &app{
		client: c,
		stdin:  stdin,
		in:     bufio.NewReader(stdin),
		stdout: stdout,
		stderr: stderr,
	}
	return cmd.run(ctx, a, fs.Args()[1:])
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "Usage: expensectl [-server URL] [-session FILE] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, c := range commands {
		fmt.Fprintf(tw, "  %s\t%s\n", c.name, c.summary)
	}
	tw.Flush()
	fmt.Fprintln(w)
	fs.PrintDefaults()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	for _, c := range commands {
		if c.name == name {
			fs.Usage = func() {
				fmt.Fprintf(a.stderr, "Usage: expensectl %s %s\n", c.name, c.usage)
				fs.PrintDefaults()
			}
		}
	}
	return fs
}

// prompt reads one line, trimmed.
func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(a.stdout, label)
	line, err := a.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readPassword disables echo on a terminal and falls back to reading a line.
func (a *app) readPassword(label string) (string, error) {
	if f, ok := a.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(a.stdout, label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.stdout)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	fmt.Fprint(a.stdout, label)
	line, err := a.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func cmdRegister(ctx context.Context, a *app, args []string) error {
	fs := a.flags("register")
	username := fs.String("username", "", "username")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password (prompted if omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *email == "" {
		fs.Usage()
		return errors.New("missing required flags: username, email")
	}

	pw := *password
	if pw == "" {
		var err error
		if pw, err = a.readPassword("Password: "); err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
	}

	user, err := a.client.Register(ctx, client.RegisterRequest{Username: *username, Email: *email, Password: pw})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Registered %s <%s>\n", user.Username, user.Email)
	return nil
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	fs := a.flags("login")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password (prompted if omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	addr := *email
	if addr == "" {
		var err error
		if addr, err = a.prompt("Email: "); err != nil {
			return fmt.Errorf("failed to read email: %w", err)
		}
	}
	pw := *password
	if pw == "" {
		var err error
		if pw, err = a.readPassword("Password: "); err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
	}

	res, err := a.client.Login(ctx, addr, pw)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Logged in as %s\n", res.User.Username)
	return nil
}

func cmdLogout(ctx context.Context, a *app, args []string) error {
	if err := a.flags("logout").Parse(args); err != nil {
		return err
	}
	if err := a.client.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "Logged out")
	return nil
}

func cmdWhoami(ctx context.Context, a *app, args []string) error {
	if err := a.flags("whoami").Parse(args); err != nil {
		return err
	}
	user, err := a.client.CurrentUser(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\t%s\n", user.ID)
	fmt.Fprintf(tw, "Username\t%s\n", user.Username)
	fmt.Fprintf(tw, "Email\t%s\n", user.Email)
	fmt.Fprintf(tw, "Since\t%s\n", user.CreatedAt.Format(time.DateOnly))
	return tw.Flush()
}

func cmdRefresh(ctx context.Context, a *app, args []string) error {
	if err := a.flags("refresh").Parse(args); err != nil {
		return err
	}
	if _, err := a.client.Refresh(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "Session renewed")
	return nil
}

func cmdAdd(ctx context.Context, a *app, args []string) error {
	fs := a.flags("add")
	amount := fs.String("amount", "", "amount, dot or comma decimal")
	category := fs.String("category", "", "one of "+categoryNames())
	custom := fs.String("custom", "", "custom category name, with -category Other")
	description := fs.String("description", "", "description")
	date := fs.String("date", time.Now().Format(time.DateOnly), "date, YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := a.client.CreateExpense(ctx, client.ExpenseRequest{
		Amount:         *amount,
		Category:       *category,
		CustomCategory: *custom,
		Description:    *description,
		Date:           *date,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Added %s %s (%s) %s\n", e.ID, core.FormatAmount(e.Amount), e.DisplayCategory, e.Date.UTC().Format(time.DateOnly))
	return nil
}

func cmdList(ctx context.Context, a *app, args []string) error {
	if err := a.flags("list").Parse(args); err != nil {
		return err
	}
	list, err := a.client.ListExpenses(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.stdout, "No expenses")
		return nil
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tCATEGORY\tAMOUNT\tDESCRIPTION")
	for _, e := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Date.UTC().Format(time.DateOnly), e.DisplayCategory, core.FormatAmount(e.Amount), e.Description)
	}
	return tw.Flush()
}

func cmdEdit(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		a.flags("edit").Usage()
		return errors.New("missing expense id")
	}
	id := args[0]

	fs := a.flags("edit")
	fs.String("amount", "", "new amount")
	fs.String("category", "", "new category")
	fs.String("custom", "", "new custom category name")
	fs.String("description", "", "new description")
	fs.String("date", "", "new date, YYYY-MM-DD")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	// Only flags given on the command line are sent.
	var update client.ExpenseUpdate
	fs.Visit(func(f *flag.Flag) {
		v := f.Value.String()
		switch f.Name {
		case "amount":
			update.Amount = &v
		case "category":
			update.Category = &v
		case "custom":
			update.CustomCategory = &v
		case "description":
			update.Description = &v
		case "date":
			update.Date = &v
		}
	})

	e, err := a.client.UpdateExpense(ctx, id, update)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Updated %s %s (%s) %s\n", e.ID, core.FormatAmount(e.Amount), e.DisplayCategory, e.Date.UTC().Format(time.DateOnly))
	return nil
}

func cmdRemove(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		a.flags("rm").Usage()
		return errors.New("expected exactly one expense id")
	}
	if err := a.client.DeleteExpense(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Deleted %s\n", args[0])
	return nil
}

func cmdDashboard(ctx context.Context, a *app, args []string) error {
	fs := a.flags("dashboard")
	year := fs.Int("year", 0, "restrict to a year")
	month := fs.Int("month", 0, "restrict to a month, 1-12")
	if err := fs.Parse(args); err != nil {
		return err
	}
	filter := dashboard.Filter{Year: *year, Month: *month}
	if err := filter.Validate(); err != nil {
		return err
	}

	list, err := a.client.ListExpenses(ctx)
	if err != nil {
		return err
	}
	expenses := make([]core.Expense, len(list))
	for i, v := range list {
		expenses[i] = v.Expense
	}
	s := dashboard.Summarize(expenses, filter)

	fmt.Fprintf(a.stdout, "Total %s over %d expenses\n", core.FormatAmount(s.Total), s.Count)
	if s.Count == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(a.stdout)
	fmt.Fprintln(tw, "CATEGORY\tTOTAL\tSHARE\tCOUNT\t")
	for _, c := range s.Categories {
		fmt.Fprintf(tw, "%s\t%s\t%s%%\t%d\t\n", c.Category, core.FormatAmount(c.Total), c.Share.StringFixed(2), c.Count)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(a.stdout)
	fmt.Fprintln(tw, strings.ToUpper(string(s.Granularity))+"\tTOTAL\tRUNNING\tCOUNT\t")
	for _, b := range s.Buckets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t\n", b.Label, core.FormatAmount(b.Total), core.FormatAmount(b.RunningTotal), b.Count)
	}
	return tw.Flush()
}

func cmdDeleteAccount(ctx context.Context, a *app, args []string) error {
	fs := a.flags("delete-account")
	yes := fs.Bool("yes", false, "do not ask for confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*yes {
		answer, err := a.prompt("This deletes your account and every expense. Type DELETE to confirm: ")
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		if answer != "DELETE" {
			return errors.New("aborted")
		}
	}

	if err := a.client.DeleteAccount(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "Account deleted")
	return nil
}

func categoryNames() string {
	cats := core.Categories()
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
