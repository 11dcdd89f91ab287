package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/canchas/libs/httpx"
	otelx "github.com/md-rashed-zaman/canchas/libs/otel"
	"github.com/md-rashed-zaman/canchas/libs/runtime"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/backend"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/calendar"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/config"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/conflict"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/render"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/reservations"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/screen"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/session"
	"github.com/md-rashed-zaman/canchas/services/booking-client/internal/submission"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
	// exitPrompt means a guard stopped the booking: log in or complete the
	// profile first.
	exitPrompt = 3
)

const usage = `usage: booking-client <command> [flags]

commands:
  login     --email E --password P
  logout
  complexes
  days
  slots     --complex ID [--day N] [--field ID]
  reserve   --complex ID --field ID --day N --slot H:00 [--yes]
  mine
  cancel    --id ID
  watch     --complex ID --field ID [--day N]
`

var errUsage = errors.New("usage")

func main() {
	ctx, stop := runtime.SignalContext(context.Background())
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type app struct {
	cfg      config.Config
	logger   *slog.Logger
	api      *backend.Client
	sessions *session.Manager
	locale   calendar.Locale
	out      *render.Renderer
	stdout   io.Writer
	in       *bufio.Reader
	now      func() time.Time
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	logger := runtime.NewLoggerTo(stderr, cfg.ServiceName, runtime.ParseLevel(runtime.Getenv("LOG_LEVEL", "warn")))

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	a, closeFn, err := newApp(cfg, logger, stdin, stdout)
	if err != nil {
		logger.Error("client setup failed", "err", err)
		return exitError
	}
	defer closeFn()

	code, err := a.dispatch(ctx, args[0], args[1:])
	if code == exitUsage || errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}
	if err != nil {
		a.out.Error(err)
		logger.Debug("command failed", "command", args[0], "err", err)
		return exitError
	}
	return code
}

func newApp(cfg config.Config, logger *slog.Logger, stdin io.Reader, stdout io.Writer) (*app, func(), error) {
	base := otelhttp.NewTransport(http.DefaultTransport)
	common := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	}

	// Token endpoints go out without the bearer layer so a refresh never
	// triggers another refresh.
	plain := backend.New(backend.Options{
		BaseURL:   cfg.APIURL,
		Transport: httpx.Chain(base, append(common, httpx.WithTimeout(cfg.RequestTimeout))...),
	})

	store, closeFn, err := sessionStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	sessions := session.NewManager(store, plain, logger)

	api := backend.New(backend.Options{
		BaseURL:   cfg.APIURL,
		Transport: httpx.Chain(base, append(common, httpx.WithBearer(sessions), httpx.WithTimeout(cfg.RequestTimeout))...),
	})

	locale := calendar.MatchLocale(cfg.Locale)
	return &app{
		cfg:      cfg,
		logger:   logger,
		api:      api,
		sessions: sessions,
		locale:   locale,
		out:      render.New(stdout, locale),
		stdout:   stdout,
		in:       bufio.NewReader(stdin),
		now:      time.Now,
	}, closeFn, nil
}

func sessionStore(cfg config.Config) (session.Store, func(), error) {
	if cfg.SessionRedisAddr == "" {
		return session.FileStore{Path: cfg.SessionFile}, func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.SessionRedisAddr,
		Password: cfg.SessionRedisPassword,
		DB:       cfg.SessionRedisDB,
	})
	return session.NewRedisStore(rdb, ""), func() { _ = rdb.Close() }, nil
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) (int, error) {
	switch cmd {
	case "login":
		return a.login(ctx, args)
	case "logout":
		return exitOK, a.sessions.Logout(ctx)
	case "complexes":
		list, err := a.api.ListComplexes(ctx)
		if err != nil {
			return exitError, err
		}
		a.out.Complexes(list)
		return exitOK, nil
	case "days":
		a.out.Days(calendar.Window(a.now().In(a.cfg.Location()), a.locale), 0)
		return exitOK, nil
	case "slots":
		return a.slots(ctx, args)
	case "reserve":
		return a.reserve(ctx, args)
	case "mine":
		list, err := a.api.MyReservations(ctx)
		if err != nil {
			return exitError, err
		}
		a.out.Reservations(list, a.cfg.Location())
		return exitOK, nil
	case "cancel":
		return a.cancel(ctx, args)
	case "watch":
		return a.watch(ctx, args)
	default:
		return exitUsage, errUsage
	}
}

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (a *app) login(ctx context.Context, args []string) (int, error) {
	fs := newFlags("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := fs.Parse(args); err != nil {
		return exitUsage, err
	}
	if strings.TrimSpace(*email) == "" || *password == "" {
		return exitUsage, errUsage
	}
	u, err := a.sessions.Login(ctx, *email, *password)
	if err != nil {
		return exitError, err
	}
	fmt.Fprintf(a.stdout, "%s <%s>\n", u.Name, u.Email)
	return exitOK, nil
}

func (a *app) cancel(ctx context.Context, args []string) (int, error) {
	fs := newFlags("cancel")
	id := fs.String("id", "", "reservation id")
	if err := fs.Parse(args); err != nil {
		return exitUsage, err
	}
	if *id == "" {
		return exitUsage, errUsage
	}
	if _, err := a.api.CancelReservation(ctx, *id); err != nil {
		if backend.IsNotFound(err) {
			a.out.UnknownReservation(*id)
			return exitError, nil
		}
		return exitError, err
	}
	a.out.Canceled()
	return exitOK, nil
}

type screenFlags struct {
	complexID string
	fieldID   string
	day       int
	slot      string
	yes       bool
}

func (a *app) parseScreenFlags(name string, args []string, needField, needSlot bool) (screenFlags, error) {
	fs := newFlags(name)
	var f screenFlags
	fs.StringVar(&f.complexID, "complex", "", "complex id")
	fs.StringVar(&f.fieldID, "field", "", "field id")
	fs.IntVar(&f.day, "day", -1, "day index in the 7-day window (0 = today)")
	if needSlot {
		fs.StringVar(&f.slot, "slot", "", "slot label, e.g. 18:00")
		fs.BoolVar(&f.yes, "yes", false, "confirm without asking")
	}
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if f.complexID == "" || (needField && f.fieldID == "") || (needSlot && (f.slot == "" || f.day < 0)) {
		return f, errUsage
	}
	return f, nil
}

func (a *app) newScreen(complexID string) *screen.Screen {
	return screen.New(complexID, screen.Deps{
		Fields:       a.api,
		Reservations: a.api,
		Profiles:     a.api,
		Creator:      a.api,
		Identity:     a.sessions,
		Notifier:     submission.NotifierFunc(a.out.Notice),
		Checker:      conflict.NewChecker(a.cfg.Location(), a.now),
		Locale:       a.locale,
		Logger:       a.logger,
		Submission: submission.Config{
			Price:             a.cfg.ReservationPrice,
			CancellationHours: a.cfg.CancellationHours,
		},
		FailClosed: a.cfg.FailClosed(),
		OnChange: func(c reservations.Change) {
			a.logger.Debug("reservations changed", "kind", c.Kind.String(), "field_id", c.FieldID, "size", c.Size)
		},
	})
}

// openScreen loads the complex, selects the requested day and expands the
// requested field.
func (a *app) openScreen(ctx context.Context, f screenFlags) (*screen.Screen, error) {
	s := a.newScreen(f.complexID)
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	if f.day >= 0 {
		if err := s.SelectDay(f.day); err != nil {
			return nil, err
		}
	}
	if f.fieldID != "" {
		if _, err := s.ExpandField(ctx, f.fieldID); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (a *app) draw(s *screen.Screen) {
	_, idx, _ := s.SelectedDay()
	a.out.Days(s.Days(), idx)
	fmt.Fprintln(a.stdout)
	a.out.Panels(s.Panels())
}

func (a *app) slots(ctx context.Context, args []string) (int, error) {
	f, err := a.parseScreenFlags("slots", args, false, false)
	if err != nil {
		return exitUsage, err
	}
	s, err := a.openScreen(ctx, f)
	if err != nil {
		return exitError, err
	}
	a.draw(s)
	return exitOK, nil
}

func (a *app) reserve(ctx context.Context, args []string) (int, error) {
	f, err := a.parseScreenFlags("reserve", args, true, true)
	if err != nil {
		return exitUsage, err
	}
	s, err := a.openScreen(ctx, f)
	if err != nil {
		return exitError, err
	}
	prompt, err := s.Tap(ctx, f.fieldID, f.slot)
	if err != nil {
		return exitError, err
	}
	a.out.Prompt(prompt)
	if prompt.Guard != submission.GuardNone {
		return exitPrompt, nil
	}
	if !f.yes && !a.confirm() {
		s.CancelConfirmation()
		return exitOK, nil
	}
	if _, err := s.Confirm(ctx); err != nil {
		// already shown by the notifier
		return exitError, nil
	}
	a.out.Panels(s.Panels())
	return exitOK, nil
}

func (a *app) confirm() bool {
	fmt.Fprint(a.stdout, a.out.Messages().ConfirmQuestion)
	line, _ := a.in.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "s", "si", "sí":
		return true
	default:
		return false
	}
}

// watch keeps the field on screen and redraws at every hour boundary so past
// slots and the midnight roll show up without user input.
func (a *app) watch(ctx context.Context, args []string) (int, error) {
	f, err := a.parseScreenFlags("watch", args, true, false)
	if err != nil {
		return exitUsage, err
	}
	s, err := a.openScreen(ctx, f)
	if err != nil {
		return exitError, err
	}
	a.draw(s)

	c := cron.New(cron.WithLocation(a.cfg.Location()))
	if _, err := c.AddFunc("0 * * * *", func() {
		s.Refresh(ctx)
		if _, err := s.View(f.fieldID); errors.Is(err, screen.ErrNotExpanded) {
			// the day rolled out of the window and the panel collapsed
			if _, err := s.ExpandField(ctx, f.fieldID); err != nil {
				a.logger.Warn("watch refresh failed", "field_id", f.fieldID, "err", err)
			}
		}
		fmt.Fprintln(a.stdout)
		a.draw(s)
	}); err != nil {
		return exitError, err
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return exitOK, nil
}
