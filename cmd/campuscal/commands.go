package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"campuscal/internal/auth"
	"campuscal/internal/calendar"
	"campuscal/internal/capture"
	appLog "campuscal/internal/log"
	"campuscal/internal/model"
	"campuscal/internal/source"
	"campuscal/internal/view"
	"campuscal/internal/web"
)

// ServeCommand runs the loader, its refresh schedule and the web server
// until SIGINT/SIGTERM.
type ServeCommand struct {
	Listen string `short:"l" long:"listen" description:"HTTP listen address (overrides config)" value-name:"<addr>"`
}

func (c *ServeCommand) Execute(_ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Listen != "" {
		cfg.Listen = c.Listen
	}
	appLog.Info("campuscal starting", "version", version, "listen", cfg.Listen)

	ctx, cancel := signalContext()
	defer cancel()

	src := newSource(cfg)
	loader := newLoader(cfg, src)
	if err := loader.Start(ctx); err != nil {
		return err
	}
	defer loader.Stop()

	if err := web.StartServer(ctx, cfg, loader, src); err != nil {
		return err
	}
	appLog.Info("campuscal exiting")
	return nil
}

// ShowCommand prints one view to stdout.
type ShowCommand struct {
	View string `long:"view" description:"Granularity" choice:"week" choice:"month" choice:"year" value-name:"<view>"`
	Date string `long:"date" description:"Any date inside the view (default: today)" value-name:"<yyyy-mm-dd>"`
	JSON bool   `long:"json" description:"Print the view state as JSON"`
}

func (c *ShowCommand) Execute(_ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	g := model.Granularity(cfg.DefaultView)
	if c.View != "" {
		if g, err = model.ParseGranularity(c.View); err != nil {
			return err
		}
	}
	ref := time.Now()
	if c.Date != "" {
		if ref, err = time.ParseInLocation("2006-01-02", c.Date, calendar.DisplayLocation()); err != nil {
			return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	st, err := newLoader(cfg, newSource(cfg)).Navigate(ctx, ref, g)
	if err != nil {
		return err
	}
	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	return printView(os.Stdout, st)
}

// printView writes st as a day-by-day agenda.
func printView(w io.Writer, st view.State) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s view: %s to %s (%d days, %s)\n",
		st.Granularity,
		st.Range.Start.Format("Mon 2 Jan 2006"),
		st.Range.End.Format("Mon 2 Jan 2006"),
		st.Range.Days(),
		calendar.DisplayTimeZone,
	)
	if st.Notice != "" {
		fmt.Fprintf(bw, "! %s\n", st.Notice)
	}
	if st.LoginRequired {
		fmt.Fprintln(bw, "! the calendar service rejected the stored token; run `campuscal login`")
	}
	if st.Skipped > 0 {
		fmt.Fprintf(bw, "! %d malformed record(s) skipped\n", st.Skipped)
	}
	if len(st.Events) == 0 {
		fmt.Fprintln(bw, "\nNo events.")
		return bw.Flush()
	}

	lastKey := ""
	for _, ev := range st.Events {
		if key := calendar.DateKey(ev.Start); key != lastKey {
			fmt.Fprintf(bw, "\n%s\n", calendar.InDisplay(ev.Start).Format("Monday 2 January"))
			lastKey = key
		}
		line := fmt.Sprintf("  %8s - %-8s  %s [%s]", ev.StartDisplay, ev.EndDisplay, ev.Title, ev.Category)
		if ev.Location != "" {
			line += " @ " + ev.Location
		}
		fmt.Fprintln(bw, line)
	}
	return bw.Flush()
}

// LoginCommand exchanges credentials for a bearer token and stores it.
type LoginCommand struct {
	Username string `short:"u" long:"username" description:"Portal username" required:"true" value-name:"<name>"`
}

func (c *LoginCommand) Execute(_ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	password, err := readSecret("Password: ")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.API.Timeout)
	defer cancel()

	token, err := auth.Login(ctx, nil, cfg.API.BaseURL, c.Username, password)
	if err != nil {
		return err
	}
	if err := auth.NewTokenStore(cfg.TokenPath).Set(token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	fmt.Println("Signed in; token stored at", cfg.TokenPath)
	return nil
}

// LogoutCommand removes the stored token.
type LogoutCommand struct{}

func (c *LogoutCommand) Execute(_ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	auth.NewTokenStore(cfg.TokenPath).Invalidate()
	fmt.Println("Signed out")
	return nil
}

// CheckCommand reports whether the stored token reaches the calendar service.
type CheckCommand struct {
	JSON bool `long:"json" description:"Print the service's answer as JSON"`
}

func (c *CheckCommand) Execute(_ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.API.Timeout)
	defer cancel()

	st, err := newSource(cfg).TestConnection(ctx)
	return printCheck(os.Stdout, st, err, c.JSON)
}

// printCheck writes the outcome of a connection check and passes err on so
// a failed check exits non-zero.
func printCheck(w io.Writer, st source.ConnectionStatus, err error, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(st); encErr != nil {
			return encErr
		}
		return err
	}
	fmt.Fprintln(w, st.Summary())
	if st.Calendars != nil {
		for _, name := range st.Calendars.Names {
			fmt.Fprintln(w, "  -", name)
		}
	}
	if errors.Is(err, source.ErrUnauthorized) {
		fmt.Fprintln(w, "! the calendar service rejected the stored token; run `campuscal login`")
	}
	return err
}

// HashPasswordCommand prints a bcrypt hash for the web UI's basic auth.
type HashPasswordCommand struct{}

func (c *HashPasswordCommand) Execute(_ []string) error {
	password, err := readSecret("Enter password:   ")
	if err != nil {
		return err
	}
	confirm, err := readSecret("Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return errors.New("passwords do not match")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

var stdin = bufio.NewReader(os.Stdin)

// readSecret prompts on stderr and reads a line without echo when stdin is
// a terminal.
func readSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := stdin.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// SnapshotCommand serves the calendar on a loopback port and captures
// /calendar to a PNG.
type SnapshotCommand struct {
	Out    string `short:"o" long:"out" description:"PNG output path" default:"calendar.png" value-name:"<path>"`
	View   string `long:"view" description:"Granularity" choice:"week" choice:"month" choice:"year" value-name:"<view>"`
	Date   string `long:"date" description:"Any date inside the view" value-name:"<yyyy-mm-dd>"`
	Width  int    `long:"width" description:"Viewport width in pixels"`
	Height int    `long:"height" description:"Viewport height in pixels"`
	Chrome string `long:"chrome" description:"Path to a Chromium binary" value-name:"<path>"`
}

func (c *SnapshotCommand) Execute(_ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// The capture talks to an in-process loopback server.
	local := *cfg
	local.BasicAuth = nil
	local.RefreshCron = ""

	ctx, cancel := signalContext()
	defer cancel()

	src := newSource(&local)
	loader := newLoader(&local, src)
	if err := loader.Start(ctx); err != nil {
		return err
	}
	defer loader.Stop()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	srvCtx, stopServer := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- web.NewServer(&local, loader, src).Serve(srvCtx, ln) }()

	q := url.Values{}
	if c.View != "" {
		q.Set("view", c.View)
	}
	if c.Date != "" {
		q.Set("date", c.Date)
	}
	target := "http://" + ln.Addr().String() + "/calendar"
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	capErr := capture.CaptureCalendarPNG(ctx, capture.Options{
		URL:        target,
		OutputPath: c.Out,
		Width:      c.Width,
		Height:     c.Height,
		ExecPath:   c.Chrome,
	})
	stopServer()
	if err := <-done; err != nil {
		appLog.Error("snapshot server stopped with error", err)
	}
	if capErr != nil {
		return capErr
	}
	fmt.Println(c.Out)
	return nil
}
