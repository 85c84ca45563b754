package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"tour-inventory/config"
	"tour-inventory/internal/broker"
	"tour-inventory/internal/models"
	"tour-inventory/internal/redisclient"
	"tour-inventory/internal/service"
	"tour-inventory/internal/store"
	"tour-inventory/internal/util"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	CommitSHA = "none"
)

// NewRootCmd builds the inventoryctl command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "inventoryctl",
		Short:         "Operate tour inventory: migrations, sweeps, slot edits and availability",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return util.InitLogger("cli", "inventoryctl")
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			util.SyncLogger()
		},
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSweepCmd())
	root.AddCommand(newSlotsCmd())
	root.AddCommand(newAvailabilityCmd())
	root.AddCommand(newTourCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "inventoryctl %s (%s)\n", Version, CommitSHA)
		},
	}
}

// session is a connected store plus the side-effect sinks write commands
// share with the server. cache and publisher are nil when unreachable.
type session struct {
	cfg       *config.Config
	store     *store.Store
	cache     service.SlotCache
	publisher service.EventPublisher
	closers   []func() error
}

// openSession connects to the configured database, then attaches Redis and
// Kafka on a best-effort basis.
func openSession(ctx context.Context) (*session, error) {
	cfg := config.Load()
	s, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if _, err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	sess := &session{cfg: cfg, store: s, closers: []func() error{s.Close}}
	sess.cache, sess.publisher, sess.closers = attachSinks(cfg, sess.closers)
	return sess, nil
}

// attachSinks builds the slot cache and event publisher. A sink that cannot
// be set up is skipped with a warning so the command still runs.
func attachSinks(cfg *config.Config, closers []func() error) (service.SlotCache, service.EventPublisher, []func() error) {
	logger := util.GetLogger()

	var cache service.SlotCache
	if cfg.Redis.Addr != "" {
		client, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("Redis unavailable, slot cache will not be invalidated", zap.Error(err))
		} else {
			cache = redisclient.NewSlotCache(client, cfg.Business.AvailabilityCacheTTL())
			closers = append(closers, client.Close)
		}
	}

	var publisher service.EventPublisher
	if brokers := nonEmpty(cfg.Kafka.Brokers); len(brokers) > 0 {
		producer := broker.NewProducer(brokers, cfg.Kafka.TopicInventory)
		publisher = broker.NewEventPublisher(producer)
		closers = append(closers, producer.Close)
	} else {
		logger.Warn("No Kafka brokers configured, events will not be published")
	}

	return cache, publisher, closers
}

// Close releases everything the session opened, newest first.
func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func parseDateFlag(name, value string) (models.Date, error) {
	d, err := models.ParseDate(value)
	if err != nil {
		return models.Date{}, fmt.Errorf("invalid --%s (want YYYY-MM-DD)", name)
	}
	return d, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
