package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	kerrors "k8s.io/apimachinery/pkg/util/errors"
	prowConfig "sigs.k8s.io/prow/pkg/config"
	prowflagutil "sigs.k8s.io/prow/pkg/flagutil"
	"sigs.k8s.io/prow/pkg/interrupts"
	"sigs.k8s.io/prow/pkg/logrusutil"
	"sigs.k8s.io/prow/pkg/metrics"
	"sigs.k8s.io/prow/pkg/pjutil"
	pprofutil "sigs.k8s.io/prow/pkg/pjutil/pprof"
	"sigs.k8s.io/prow/pkg/secretutil"
	"sigs.k8s.io/prow/pkg/version"

	"github.com/despreadlabs/leaderboard-collector/pkg/httphelper"
	"github.com/despreadlabs/leaderboard-collector/pkg/leaderboard"
	"github.com/despreadlabs/leaderboard-collector/pkg/notion"
)

const (
	envNotionToken      = "NOTION_TOKEN"
	envNotionDatabaseID = "NOTION_STORYTELLER_DB_ID"
	envTriggerSecret    = "CRON_SECRET"
)

type options struct {
	listenAddr  string
	gracePeriod time.Duration
	envFile     string

	notionToken      string
	notionDatabaseID string
	notionRateLimit  float64
	triggerSecret    string

	metricsTimeout   time.Duration
	businessTimezone string

	schedule string
	runOnce  bool

	storageOptions

	instrumentationOptions prowflagutil.InstrumentationOptions

	logLevel string
	logStyle string
}

func bindOptions(fs *flag.FlagSet) *options {
	o := options{}
	o.instrumentationOptions.AddFlags(fs)
	o.storageOptions.bind(fs)
	fs.StringVar(&o.listenAddr, "listen-addr", ":8080", "The address to serve the trigger endpoint on.")
	fs.DurationVar(&o.gracePeriod, "grace-period", 70*time.Second, "Grace period for server shutdown, long enough for an in-flight run to finish.")
	fs.StringVar(&o.envFile, "env-file", "", "Optional dotenv file to load into the environment before reading credentials from it.")
	fs.StringVar(&o.notionToken, "notion-token", "", fmt.Sprintf("Notion integration token. Defaults to $%s.", envNotionToken))
	fs.StringVar(&o.notionDatabaseID, "notion-database-id", "", fmt.Sprintf("Notion database listing the tracked projects. Defaults to $%s.", envNotionDatabaseID))
	fs.Float64Var(&o.notionRateLimit, "notion-rate-limit", 3, "Sustained Notion requests per second.")
	fs.StringVar(&o.triggerSecret, "trigger-secret", "", fmt.Sprintf("Bearer token required to trigger a run; no check when empty. Defaults to $%s.", envTriggerSecret))
	fs.DurationVar(&o.metricsTimeout, "metrics-timeout", 20*time.Second, "Timeout of a single metrics API request.")
	fs.StringVar(&o.businessTimezone, "business-timezone", leaderboard.DefaultTimezone, "Time zone in which the business day of a run is determined.")
	fs.StringVar(&o.schedule, "schedule", "", "Optional cron expression, in UTC, on which to run collections in-process.")
	fs.BoolVar(&o.runOnce, "run-once", false, "Run a single collection and exit instead of serving the trigger endpoint.")
	fs.StringVar(&o.logLevel, "log-level", "info", "Level at which to log output.")
	fs.StringVar(&o.logStyle, "log-style", logStyleJson, "Logging style: json or text.")
	return &o
}

const (
	logStyleJson = "json"
	logStyleText = "text"
)

// complete loads the env file and fills credentials that were not passed as flags from the environment.
func (o *options) complete() error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil {
			return fmt.Errorf("could not load --env-file: %w", err)
		}
	}
	for flagValue, env := range map[*string]string{
		&o.notionToken:      envNotionToken,
		&o.notionDatabaseID: envNotionDatabaseID,
		&o.triggerSecret:    envTriggerSecret,
	} {
		if *flagValue == "" {
			*flagValue = os.Getenv(env)
		}
	}
	return nil
}

func (o *options) validate() error {
	var errs []error
	if _, err := logrus.ParseLevel(o.logLevel); err != nil {
		errs = append(errs, fmt.Errorf("--log-level invalid: %w", err))
	}
	if o.logStyle != logStyleJson && o.logStyle != logStyleText {
		errs = append(errs, fmt.Errorf("--log-style must be one of %s or %s, not %s", logStyleText, logStyleJson, o.logStyle))
	}
	if _, err := time.LoadLocation(o.businessTimezone); err != nil {
		errs = append(errs, fmt.Errorf("--business-timezone invalid: %w", err))
	}
	if o.notionRateLimit < 0 {
		errs = append(errs, errors.New("--notion-rate-limit must not be negative"))
	}
	if o.metricsTimeout <= 0 {
		errs = append(errs, errors.New("--metrics-timeout must be positive"))
	}
	if o.schedule != "" {
		if o.runOnce {
			errs = append(errs, errors.New("--schedule and --run-once are mutually exclusive"))
		}
		if _, err := cron.ParseStandard(o.schedule); err != nil {
			errs = append(errs, fmt.Errorf("--schedule invalid: %w", err))
		}
	}
	if err := o.storageOptions.validate(); err != nil {
		errs = append(errs, err)
	}
	if err := o.instrumentationOptions.Validate(false); err != nil {
		errs = append(errs, err)
	}
	return kerrors.NewAggregate(errs)
}

func (o *options) config() leaderboard.Config {
	return leaderboard.Config{
		NotionToken:      o.notionToken,
		NotionDatabaseID: o.notionDatabaseID,
		TriggerSecret:    o.triggerSecret,
	}
}

func gatherOptions(fs *flag.FlagSet, args []string) (*options, error) {
	o := bindOptions(fs)
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}
	if err := o.complete(); err != nil {
		return nil, err
	}
	return o, o.validate()
}

func setupLogging(o *options, censorer secretutil.Censorer) {
	switch o.logStyle {
	case logStyleJson:
		logrusutil.ComponentInit()
	case logStyleText:
		logrus.SetFormatter(&logrus.TextFormatter{
			ForceColors:     true,
			DisableQuote:    true,
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}
	logrus.SetFormatter(logrusutil.NewFormatterWithCensor(logrus.StandardLogger().Formatter, censorer))
	level, _ := logrus.ParseLevel(o.logLevel)
	logrus.SetLevel(level)
}

func main() {
	version.Name = "leaderboard-collector"
	flagSet := flag.NewFlagSet("", flag.ExitOnError)
	o, err := gatherOptions(flagSet, os.Args[1:])
	if err != nil {
		logrus.WithError(err).Fatal("Failed to gather options.")
	}

	censorer := secretutil.NewCensorer()
	censorer.Refresh(o.secrets()...)
	setupLogging(o, censorer)
	logrus.Infof("%s version %s", version.Name, version.Version)

	config := o.config()
	if err := config.Validate(); err != nil {
		logrus.WithError(err).Warn("Configuration is incomplete, runs will fail until it is provided.")
	}

	blobs, err := o.storageOptions.store(interrupts.Context())
	if err != nil {
		logrus.WithError(err).Fatal("Could not initialize snapshot storage.")
	}
	location, _ := time.LoadLocation(o.businessTimezone)
	collector, err := leaderboard.NewCollector(
		config,
		notion.NewClient(notion.Config{Token: config.NotionToken, RateLimit: o.notionRateLimit}),
		leaderboard.NewMetricsClient(leaderboard.DefaultMetricsBaseURL, o.metricsTimeout),
		blobs,
		leaderboard.WithLocation(location),
	)
	if err != nil {
		logrus.WithError(err).Fatal("Could not create collector.")
	}
	s := &server{collector: collector, triggerSecret: config.TriggerSecret}

	if o.runOnce {
		result, err := s.run(interrupts.Context(), logrus.WithField("trigger", "once"))
		if err != nil {
			logrus.WithError(err).Fatal("Collection failed.")
		}
		logrus.WithField("saved", result.Count).Info("Collection finished.")
		return
	}

	pprofutil.Instrument(o.instrumentationOptions)
	metrics.ExposeMetrics(version.Name, prowConfig.PushGateway{}, o.instrumentationOptions.MetricsPort)
	health := pjutil.NewHealthOnPort(o.instrumentationOptions.HealthPort)

	if o.schedule != "" {
		scheduler, err := s.schedule(o.schedule)
		if err != nil {
			logrus.WithError(err).Fatal("Could not schedule collections.")
		}
		scheduler.Start()
		interrupts.OnInterrupt(func() {
			<-scheduler.Stop().Done()
		})
		logrus.WithField("schedule", o.schedule).Info("Scheduled collections.")
	}

	router := s.router(httphelper.NewMetrics("leaderboard_collector", prometheus.DefaultRegisterer))
	interrupts.ListenAndServe(&http.Server{Addr: o.listenAddr, Handler: router}, o.gracePeriod)
	health.ServeReady()
	interrupts.WaitForGracefulShutdown()
}

// secrets lists every configured credential that must never show up in logs.
func (o *options) secrets() []string {
	var secrets []string
	for _, secret := range []string{o.notionToken, o.triggerSecret, o.minioSecretKey} {
		if secret != "" {
			secrets = append(secrets, secret)
		}
	}
	return secrets
}
