package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/hannahlabs/leadflow/internal/api"
	"github.com/hannahlabs/leadflow/internal/assistant"
	"github.com/hannahlabs/leadflow/internal/availability"
	"github.com/hannahlabs/leadflow/internal/dispatch"
	"github.com/hannahlabs/leadflow/internal/email"
	"github.com/hannahlabs/leadflow/internal/flow"
	"github.com/hannahlabs/leadflow/internal/messaging"
	"github.com/hannahlabs/leadflow/internal/models"
	"github.com/hannahlabs/leadflow/internal/scheduler"
	"github.com/hannahlabs/leadflow/internal/store"
	"github.com/hannahlabs/leadflow/internal/util"
	"github.com/hannahlabs/leadflow/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for LeadFlow state data
	DefaultStateDir = "/var/lib/leadflow"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "leadflow.db"
	// AvailabilityRefreshCron is how often the availability cache is recomputed
	// for the configured text line.
	AvailabilityRefreshCron = "*/15 * * * *"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping LeadFlow with configured modules")
	slog.Debug("Final configuration", "dsn_set", *flags.dbDSN != "", "api_addr", *flags.apiAddr, "messenger", *flags.messenger)
	if err := run(flags); err != nil {
		slog.Error("LeadFlow failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("LeadFlow exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL    string
	StateDir       string
	OpenAIKey      string
	APIAddr        string
	Messenger      string
	TextNumber     string
	NotifyNumber   string
	BlockedSenders string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	WhatsAppDSN string

	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMTPFromEmail string
	SMTPFromName  string
}

// Flags holds command line flag values
type Flags struct {
	stateDir     *string
	dbDSN        *string
	openaiKey    *string
	apiAddr      *string
	messenger    *string
	textNumber   *string
	notifyNumber *string
	blocked      *string
	qrOutput     *string
	numeric      *bool
	waDSN        *string
	smtpHost     *string
	smtpPort     *int
	smtpUser     *string
	smtpPass     *string
	smtpFrom     *string
	smtpName     *string
	twilioSID    *string
	twilioToken  *string
	twilioFrom   *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		StateDir:         os.Getenv("LEADFLOW_STATE_DIR"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		APIAddr:          os.Getenv("API_ADDR"),
		Messenger:        util.GetEnvDefault("MESSENGER", "twilio"),
		TextNumber:       os.Getenv("TEXT_NUMBER"),
		NotifyNumber:     os.Getenv("NOTIFY_NUMBER"),
		BlockedSenders:   os.Getenv("BLOCKED_SENDERS"),
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber: os.Getenv("TWILIO_FROM_NUMBER"),
		WhatsAppDSN:      os.Getenv("WHATSAPP_DB_DSN"),
		SMTPHost:         os.Getenv("SMTP_HOST"),
		SMTPPort:         util.ParseIntEnv("SMTP_PORT", 0),
		SMTPUsername:     os.Getenv("SMTP_USERNAME"),
		SMTPPassword:     os.Getenv("SMTP_PASSWORD"),
		SMTPFromEmail:    os.Getenv("SMTP_FROM_EMAIL"),
		SMTPFromName:     os.Getenv("SMTP_FROM_NAME"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No LEADFLOW_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"LEADFLOW_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"MESSENGER", config.Messenger,
		"SMTP_HOST_SET", config.SMTPHost != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:     flag.String("state-dir", config.StateDir, "state directory for LeadFlow data (overrides $LEADFLOW_STATE_DIR)"),
		dbDSN:        flag.String("db-dsn", config.DatabaseURL, "database DSN, Postgres URL or SQLite path (overrides $DATABASE_URL)"),
		openaiKey:    flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:      flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		messenger:    flag.String("messenger", config.Messenger, "outbound messaging transport, twilio or whatsapp (overrides $MESSENGER)"),
		textNumber:   flag.String("text-number", config.TextNumber, "tenant text line assigned to messages pushed by the transport (overrides $TEXT_NUMBER)"),
		notifyNumber: flag.String("notify-number", config.NotifyNumber, "staff number for lead and event notifications (overrides $NOTIFY_NUMBER)"),
		blocked:      flag.String("blocked-senders", config.BlockedSenders, "comma-separated sender numbers to reject (overrides $BLOCKED_SENDERS)"),
		qrOutput:     flag.String("qr-output", "", "path to write the WhatsApp login QR code"),
		numeric:      flag.Bool("numeric-code", false, "use a numeric WhatsApp login code instead of a QR code"),
		waDSN:        flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "database DSN for the WhatsApp session store (overrides $WHATSAPP_DB_DSN)"),
		smtpHost:     flag.String("smtp-host", config.SMTPHost, "SMTP server for guest card emails (overrides $SMTP_HOST)"),
		smtpPort:     flag.Int("smtp-port", config.SMTPPort, "SMTP server port (overrides $SMTP_PORT)"),
		smtpUser:     flag.String("smtp-username", config.SMTPUsername, "SMTP username (overrides $SMTP_USERNAME)"),
		smtpPass:     flag.String("smtp-password", config.SMTPPassword, "SMTP password (overrides $SMTP_PASSWORD)"),
		smtpFrom:     flag.String("smtp-from-email", config.SMTPFromEmail, "guest card sender address (overrides $SMTP_FROM_EMAIL)"),
		smtpName:     flag.String("smtp-from-name", config.SMTPFromName, "guest card sender display name (overrides $SMTP_FROM_NAME)"),
		twilioSID:    flag.String("twilio-account-sid", config.TwilioAccountSID, "Twilio account SID (overrides $TWILIO_ACCOUNT_SID)"),
		twilioToken:  flag.String("twilio-auth-token", config.TwilioAuthToken, "Twilio auth token (overrides $TWILIO_AUTH_TOKEN)"),
		twilioFrom:   flag.String("twilio-from-number", config.TwilioFromNumber, "Twilio sender number (overrides $TWILIO_FROM_NUMBER)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"messenger", *flags.messenger)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite3" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return fmt.Errorf("create state directory %s: %w", stateDir, err)
		}
	}
	return nil
}

// buildStore opens the configured store backend.
func buildStore(flags Flags) (store.Store, error) {
	if *flags.dbDSN == "" {
		slog.Warn("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
}

// buildMessenger constructs the configured outbound transport.
func buildMessenger(flags Flags) (messaging.Service, error) {
	switch *flags.messenger {
	case "twilio":
		return messaging.NewTwilioService(
			messaging.WithAccountSID(*flags.twilioSID),
			messaging.WithAuthToken(*flags.twilioToken),
			messaging.WithFromNumber(*flags.twilioFrom),
		)
	case "whatsapp":
		var waOpts []whatsapp.Option
		if *flags.waDSN != "" {
			waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.waDSN))
		}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, fmt.Errorf("whatsapp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil
	default:
		return nil, fmt.Errorf("unknown messenger %q", *flags.messenger)
	}
}

// buildEmailSender constructs the guest card email gateway. Without an SMTP
// host, guest card requests fail with a clear error instead of at startup.
func buildEmailSender(flags Flags) email.Sender {
	if *flags.smtpHost == "" {
		slog.Warn("SMTP not configured, guest card emails will fail")
		return disabledEmailSender{}
	}
	emailOpts := []email.Option{
		email.WithHost(*flags.smtpHost),
		email.WithCredentials(*flags.smtpUser, *flags.smtpPass),
		email.WithFrom(*flags.smtpFrom, *flags.smtpName),
	}
	if *flags.smtpPort > 0 {
		emailOpts = append(emailOpts, email.WithPort(*flags.smtpPort))
	}
	sender, err := email.NewSMTPSender(emailOpts...)
	if err != nil {
		slog.Warn("SMTP misconfigured, guest card emails will fail", "error", err)
		return disabledEmailSender{}
	}
	return sender
}

type disabledEmailSender struct{}

func (disabledEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	return fmt.Errorf("email delivery is not configured")
}

// buildFlowOptions assembles orchestrator configuration from flags.
func buildFlowOptions(flags Flags) []flow.Option {
	var opts []flow.Option
	if *flags.notifyNumber != "" {
		opts = append(opts, flow.WithNotifyNumber(*flags.notifyNumber))
	}
	if *flags.blocked != "" {
		var senders []string
		for _, s := range strings.Split(*flags.blocked, ",") {
			if s = strings.TrimSpace(s); s != "" {
				senders = append(senders, s)
			}
		}
		opts = append(opts, flow.WithBlockedSenders(senders))
	}
	return opts
}

// run wires the modules together and serves until interrupted.
func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(flags)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}

	messenger, err := buildMessenger(flags)
	if err != nil {
		return fmt.Errorf("messenger: %w", err)
	}
	if err := messenger.Start(ctx); err != nil {
		return fmt.Errorf("start messenger: %w", err)
	}
	defer func() {
		if err := messenger.Stop(); err != nil {
			slog.Warn("messenger stop failed", "error", err)
		}
	}()

	backend, err := assistant.NewOpenAIBackend(*flags.openaiKey)
	if err != nil {
		return fmt.Errorf("assistant backend: %w", err)
	}
	ai := assistant.NewClient(backend)

	avail := availability.NewService(st)
	if *flags.textNumber != "" {
		sched := scheduler.NewScheduler()
		defer sched.Stop()
		textNumber := *flags.textNumber
		if err := sched.AddJob(AvailabilityRefreshCron, func() {
			if _, err := avail.CompanyAvailability(ctx, textNumber, true); err != nil {
				slog.Warn("availability refresh failed", "error", err, "phone", textNumber)
			}
		}); err != nil {
			return fmt.Errorf("schedule availability refresh: %w", err)
		}
	}
	disp := dispatch.NewDispatcher(st, messenger, buildEmailSender(flags),
		dispatch.WithNotifyNumber(*flags.notifyNumber))
	orch := flow.NewOrchestrator(st, ai, avail, disp, messenger, flow.NewDuplicateGuard(), buildFlowOptions(flags)...)

	// Push transports deliver inbound texts over a channel instead of a webhook.
	if responses := messenger.Responses(); responses != nil {
		go consumeInbound(ctx, orch, responses, *flags.textNumber)
	}

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(orch, avail, apiOpts...)
	return server.Run(ctx)
}

// consumeInbound feeds transport-pushed texts through the same exchange as the
// SMS webhook. Messages carry no destination line, so the configured tenant
// text number stands in.
func consumeInbound(ctx context.Context, orch *flow.Orchestrator, responses <-chan models.InboundText, textNumber string) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-responses:
			if !ok {
				return
			}
			to := msg.To
			if to == "" {
				to = textNumber
			}
			if _, err := orch.HandleInboundMessage(ctx, msg.From, to, msg.Body); err != nil {
				slog.Error("inbound exchange failed", "error", err, "from", msg.From)
			}
		}
	}
}
