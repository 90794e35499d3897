package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/beyondbrewing/hummock/config"
	"github.com/beyondbrewing/hummock/db"
	"github.com/beyondbrewing/hummock/hummock"
	"github.com/beyondbrewing/hummock/hummock/key"
	"github.com/beyondbrewing/hummock/pkg/logger"
	"github.com/beyondbrewing/hummock/storage"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// app is the state shared by every subcommand for one invocation.
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	log    logger.Logger
	engine *hummock.Storage
	store  *hummock.StateStore
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           config.APP_NAME,
		Short:         "Epoch-versioned key/value state store",
		SilenceUsage:  true,
	}

	flags := root.PersistentFlags()
	flags.String("data-dir", "", "database directory (env HUMMOCK_DATA_DIR)")
	flags.Bool("conflict-detection", false, "panic on write protocol violations (env HUMMOCK_WRITE_CONFLICT_DETECTION_ENABLED)")
	flags.String("log-level", "", "log level (env HUMMOCK_LOG_LEVEL)")
	mustBind(a.v, config.KeyDataDir, flags.Lookup("data-dir"))
	mustBind(a.v, config.KeyWriteConflictDetectionEnabled, flags.Lookup("conflict-detection"))
	mustBind(a.v, config.KeyLogLevel, flags.Lookup("log-level"))

	root.AddCommand(
		a.getCmd(),
		a.putCmd(),
		a.deleteCmd(),
		a.scanCmd(),
		a.ingestCmd(),
		versionCmd(),
	)
	return root
}

func mustBind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

// run opens the engine around fn and closes it afterwards, even when fn
// fails, so the Pebble directory lock is always released.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		if err := a.open(); err != nil {
			return err
		}
		defer func() { err = errors.CombineErrors(err, a.close()) }()
		return fn(cmd, args)
	}
}

func (a *app) open() error {
	cfg, err := config.LoadFrom(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	logger.SetDefault(log)
	a.log = log

	a.engine, err = hummock.Open(cfg.DataDir,
		hummock.WithLogger(log),
		hummock.WithConflictDetection(cfg.WriteConflictDetectionEnabled),
		hummock.WithDBOptions(
			db.WithCacheSize(cfg.CacheSize),
			db.WithMemTableSize(cfg.MemTableSize),
			db.WithSyncWrites(cfg.SyncWrites),
		),
	)
	if err != nil {
		return err
	}
	a.store = hummock.NewStateStore(a.engine)
	return nil
}

func (a *app) close() error {
	if a.engine == nil {
		return nil
	}
	err := a.engine.Close()
	a.engine, a.store = nil, nil
	return err
}

func newLogger(cfg *config.Config) (logger.Logger, error) {
	if cfg.LogFormat == "development" {
		return logger.NewDevelopment()
	}
	return logger.Production(cfg.LogLevel)
}

func (a *app) getCmd() *cobra.Command {
	var epoch uint64
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Print the newest value of KEY",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			val, err := a.engine.GetAt(cmd.Context(), []byte(args[0]), epoch)
			if errors.Is(err, storage.ErrKeyNotFound) {
				return errors.Newf("key %q not found", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(val))
			return nil
		}),
	}
	cmd.Flags().Uint64Var(&epoch, "epoch", key.MaxEpoch, "read as of this epoch")
	return cmd
}

func (a *app) putCmd() *cobra.Command {
	var epoch uint64
	cmd := &cobra.Command{
		Use:   "put KEY VALUE",
		Short: "Write VALUE under KEY",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			m := storage.Put([]byte(args[0]), []byte(args[1]))
			return a.write(cmd, m, epoch)
		}),
	}
	cmd.Flags().Uint64Var(&epoch, "epoch", 0, "write epoch (default: one past the max committed epoch)")
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	var epoch uint64
	cmd := &cobra.Command{
		Use:   "delete KEY",
		Short: "Write a tombstone for KEY",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			return a.write(cmd, storage.Delete([]byte(args[0])), epoch)
		}),
	}
	cmd.Flags().Uint64Var(&epoch, "epoch", 0, "write epoch (default: one past the max committed epoch)")
	return cmd
}

func (a *app) write(cmd *cobra.Command, m storage.Mutation, epoch uint64) error {
	if !cmd.Flags().Changed("epoch") {
		epoch = a.engine.MaxCommittedEpoch() + 1
	}
	if err := a.store.IngestBatch(cmd.Context(), []storage.Mutation{m}, epoch); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ok epoch=%d\n", epoch)
	return nil
}

func (a *app) scanCmd() *cobra.Command {
	var reverse bool
	cmd := &cobra.Command{
		Use:   "scan [PREFIX]",
		Short: "Print every key starting with PREFIX",
		Args:  cobra.MaximumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			var prefix []byte
			if len(args) == 1 {
				prefix = []byte(args[0])
			}
			open := a.store.Iter
			if reverse {
				open = a.store.ReverseIter
			}
			it, err := open(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			defer it.Close()

			out := cmd.OutOrStdout()
			for {
				kv, ok, err := it.Next(cmd.Context())
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
				fmt.Fprintf(out, "%s\t%s\n", kv.Key, kv.Value)
			}
		}),
	}
	cmd.Flags().BoolVar(&reverse, "reverse", false, "iterate in descending key order")
	return cmd
}

func (a *app) ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [FILE]",
		Short: "Replay a batch file, one mutation per line",
		Long: `Replay a batch file read from FILE or stdin. Each line is

  EPOCH put KEY VALUE
  EPOCH delete KEY

Blank lines and lines starting with # are ignored. Consecutive lines with
the same epoch form one atomic batch. When the epoch changes, the previous
one is archived.`,
		Args: cobra.MaximumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return errors.Wrap(err, "open batch file")
				}
				defer f.Close()
				r = f
			}
			return a.ingest(cmd, r)
		}),
	}
	return cmd
}

func (a *app) ingest(cmd *cobra.Command, r io.Reader) error {
	var (
		batch   []storage.Mutation
		epoch   key.Epoch
		batches int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := a.store.IngestBatch(cmd.Context(), batch, epoch); err != nil {
			return err
		}
		a.engine.ArchiveEpoch(epoch, nil)
		batches++
		batch = batch[:0]
		return nil
	}

	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		e, m, err := parseMutation(text)
		if err != nil {
			return errors.Wrapf(err, "line %d", line)
		}
		if len(batch) > 0 && e != epoch {
			if err := flush(); err != nil {
				return err
			}
		}
		epoch = e
		batch = append(batch, m)
	}
	if err := sc.Err(); err != nil {
		return errors.Wrap(err, "read batch file")
	}
	if err := flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ingested %d batches, max committed epoch %d\n",
		batches, a.engine.MaxCommittedEpoch())
	return nil
}

func parseMutation(line string) (key.Epoch, storage.Mutation, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return 0, storage.Mutation{}, errors.Newf("expected EPOCH OP KEY [VALUE], got %q", line)
	}
	epoch, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0, storage.Mutation{}, errors.Wrapf(err, "bad epoch %q", fields[0])
	}
	switch op := fields[1]; {
	case op == "put" && len(fields) == 4:
		return epoch, storage.Put([]byte(fields[2]), []byte(fields[3])), nil
	case op == "delete" && len(fields) == 3:
		return epoch, storage.Delete([]byte(fields[2])), nil
	default:
		return 0, storage.Mutation{}, errors.Newf("unknown mutation %q", line)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", config.APP_NAME, config.APP_VERSION)
		},
	}
}
