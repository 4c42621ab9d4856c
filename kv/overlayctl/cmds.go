package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/pingcap-incubator/tinydoc/kv/config"
	"github.com/pingcap-incubator/tinydoc/kv/model"
	"github.com/pingcap-incubator/tinydoc/kv/overlay"
	"github.com/pingcap-incubator/tinydoc/kv/persistence"
	"github.com/pingcap-incubator/tinydoc/kv/util"
	"github.com/pingcap-incubator/tinydoc/kv/util/deferred"
	"github.com/pingcap-incubator/tinydoc/log"
	"github.com/pingcap/errors"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	dbPath     string
	user       string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "overlayctl",
		Short: "Inspect and edit the pending document overlays of a durable store.",
		Long: `Inspect and edit the pending document overlays of a durable store.

Every command opens the store at --db, runs in a single transaction and prints
the result as JSON. The store must not be open in another process.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file path")
	root.PersistentFlags().StringVar(&flags.dbPath, "db", "", "database directory, overrides db-path from the config")
	root.PersistentFlags().StringVar(&flags.user, "user", "", "user whose overlays are read or written")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level, overrides log-level from the config")

	root.AddCommand(
		getCommand(flags),
		collectionCommand(flags),
		groupCommand(flags),
		saveCommand(flags),
		pruneCommand(flags),
	)
	return root
}

func getCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <document-key>",
		Short: "Print the overlay of one document.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := model.ParseDocumentKey(args[0])
			if err != nil {
				return err
			}
			return withCache(cmd.Context(), flags, false, func(p persistence.Persistence, cache overlay.DocumentOverlayCache) error {
				found, err := persistence.RunTransaction(cmd.Context(), p, "overlayctl get", persistence.ReadOnly,
					func(txn *persistence.Transaction) *deferred.Value[*model.Overlay] {
						return cache.GetOverlay(txn, key)
					})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), found)
			})
		},
	}
}

func collectionCommand(flags *globalFlags) *cobra.Command {
	var since int64
	cmd := &cobra.Command{
		Use:   "collection <collection-path>",
		Short: "Print the overlays of the documents directly in a collection.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := model.ParseResourcePath(args[0])
			if err != nil {
				return err
			}
			if path.Len()%2 != 1 {
				return errors.Errorf("%q is not a collection path", args[0])
			}
			return withCache(cmd.Context(), flags, false, func(p persistence.Persistence, cache overlay.DocumentOverlayCache) error {
				overlays, err := persistence.RunTransaction(cmd.Context(), p, "overlayctl collection", persistence.ReadOnly,
					func(txn *persistence.Transaction) *deferred.Value[model.OverlayMap] {
						return cache.GetOverlaysForCollection(txn, path, since)
					})
				if err != nil {
					return err
				}
				out := make(map[string]*model.Overlay, len(overlays))
				for key, o := range overlays {
					out[key.String()] = o
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().Int64Var(&since, "since", model.BatchIDUnknown, "only overlays with a batch id greater than this")
	return cmd
}

func groupCommand(flags *globalFlags) *cobra.Command {
	var (
		since int64
		count int
	)
	cmd := &cobra.Command{
		Use:   "group <collection-id>",
		Short: "Print one page of overlays of a collection group, ordered by batch id.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd.Context(), flags, false, func(p persistence.Persistence, cache overlay.DocumentOverlayCache) error {
				page, err := persistence.RunTransaction(cmd.Context(), p, "overlayctl group", persistence.ReadOnly,
					func(txn *persistence.Transaction) *deferred.Value[[]*model.Overlay] {
						return cache.GetOverlaysForCollectionGroup(txn, args[0], since, count)
					})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), page)
			})
		},
	}
	cmd.Flags().Int64Var(&since, "since", model.BatchIDUnknown, "only overlays with a batch id greater than this")
	cmd.Flags().IntVar(&count, "count", 100, "page size")
	return cmd
}

func saveCommand(flags *globalFlags) *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "save <batch-id> <document-key> [json-fields]",
		Short: "Store a set mutation, or a delete with --delete, as the overlay of a document.",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return errors.Annotatef(err, "invalid batch id %q", args[0])
			}
			key, err := model.ParseDocumentKey(args[1])
			if err != nil {
				return err
			}
			var mutation model.Mutation
			switch {
			case remove && len(args) == 2:
				mutation = model.NewDeleteMutation(key)
			case !remove && len(args) == 3:
				fields, err := model.EncodeFields([]byte(args[2]))
				if err != nil {
					return errors.Annotate(err, "invalid json fields")
				}
				mutation = model.NewSetMutation(key, fields)
			default:
				return errors.New("save takes json fields, or --delete without them")
			}

			return withCache(cmd.Context(), flags, true, func(p persistence.Persistence, cache overlay.DocumentOverlayCache) error {
				_, err := persistence.RunTransaction(cmd.Context(), p, "overlayctl save", persistence.ReadWrite,
					func(txn *persistence.Transaction) *deferred.Value[struct{}] {
						txn.AddOnCommittedListener(func() {
							fmt.Fprintf(cmd.OutOrStdout(), "saved %s at batch %d\n", key, batchID)
						})
						return cache.SaveOverlays(txn, batchID, model.MutationMap{key: mutation})
					})
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&remove, "delete", false, "store a delete mutation")
	return cmd
}

func pruneCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "prune <batch-id>",
		Short: "Remove every overlay with a batch id at or below the given one.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return errors.Annotatef(err, "invalid batch id %q", args[0])
			}
			return withCache(cmd.Context(), flags, true, func(p persistence.Persistence, cache overlay.DocumentOverlayCache) error {
				_, err := persistence.RunTransaction(cmd.Context(), p, "overlayctl prune", persistence.ReadWritePrimary,
					func(txn *persistence.Transaction) *deferred.Value[struct{}] {
						txn.AddOnCommittedListener(func() {
							fmt.Fprintf(cmd.OutOrStdout(), "pruned overlays up to batch %d\n", batchID)
						})
						return cache.RemoveOverlaysForBatchID(txn, batchID)
					})
				return err
			})
		},
	}
}

func loadConfig(flags *globalFlags) (*config.Config, error) {
	conf := config.NewDefaultConfig()
	if flags.configPath != "" {
		if !util.FileExists(flags.configPath) {
			return nil, errors.Errorf("config file %s not found", flags.configPath)
		}
		var err error
		if conf, err = config.LoadFile(flags.configPath); err != nil {
			return nil, err
		}
	}
	if flags.dbPath != "" {
		conf.DBPath = flags.dbPath
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	// The tool always works on the durable store and is its only user.
	conf.Backend = config.BackendDurable
	conf.Primary = true
	return conf, conf.Validate()
}

// withCache opens the durable store, runs fn and shuts the store down again.
// Read-only commands refuse to create a missing store.
func withCache(ctx context.Context, flags *globalFlags, write bool,
	fn func(p persistence.Persistence, cache overlay.DocumentOverlayCache) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conf, err := loadConfig(flags)
	if err != nil {
		return err
	}
	log.SetLevelByString(conf.LogLevel)
	if !write && !util.DirExists(conf.DBPath) {
		return errors.Errorf("no database at %s", conf.DBPath)
	}

	p, err := persistence.New(conf)
	if err != nil {
		return err
	}
	if err := p.Start(); err != nil {
		return err
	}
	defer func() {
		if err := p.Shutdown(); err != nil {
			log.Warnf("shutdown: %v", err)
		}
	}()
	return fn(p, overlay.NewDocumentOverlayCache(flags.user))
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Trace(err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
