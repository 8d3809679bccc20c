package main

import (
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/systemshift/memex-object/internal/blockcache"
	"github.com/systemshift/memex-object/internal/config"
	"github.com/systemshift/memex-object/internal/kubo"
	"github.com/systemshift/memex-object/internal/metrics"
	"github.com/systemshift/memex-object/internal/object"
	"go.opencensus.io/stats/view"
)

var log = logging.Logger("memex-object")

// app carries state shared by every subcommand.
type app struct {
	cfgFile  string
	stats    bool
	settings *config.Settings
	store    *object.Store
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "memex-object",
		Short:         "Read and write Merkle DAG objects on a Kubo daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.Root())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.stats {
				printStats(cmd.ErrOrStderr())
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.memex/object.yaml)")
	pf.BoolVar(&a.stats, "stats", false, "print RPC and cache metrics to stderr on exit")
	pf.String("api", "", "Kubo RPC API URL")
	pf.Duration("timeout", 0, "timeout for each non-streaming request")
	pf.String("cache-dir", "", "directory of verified blocks to serve block reads from")
	pf.String("data-encoding", "", "data encoding for object/get: text or base64")
	pf.Bool("verify-put", false, "check the daemon's hash for every stored object")
	pf.String("log-level", "", "log level for all subsystems")

	root.AddCommand(
		newNewCmd(a),
		newGetCmd(a),
		newPutCmd(a),
		newDataCmd(a),
		newLinksCmd(a),
		newStatCmd(a),
		newBlockCmd(a),
		newDiffCmd(a),
		newPatchCmd(a),
	)
	return root
}

var flagKeys = map[string]string{
	"api":           config.KeyAPIURL,
	"timeout":       config.KeyAPITimeout,
	"cache-dir":     config.KeyCacheDir,
	"data-encoding": config.KeyDataEncoding,
	"verify-put":    config.KeyVerifyPut,
	"log-level":     config.KeyLogLevel,
}

func (a *app) init(root *cobra.Command) error {
	v, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if err := bindFlags(v, root); err != nil {
		return err
	}
	s, err := config.Resolve(v)
	if err != nil {
		return err
	}
	a.settings = s

	if err := logging.SetLogLevel("*", s.LogLevel); err != nil {
		return fmt.Errorf("log level %q: %w", s.LogLevel, err)
	}
	if err := view.Register(metrics.DefaultViews...); err != nil {
		return fmt.Errorf("register views: %w", err)
	}

	opts := []object.Option{
		object.WithDataEncoding(s.DataEncoding),
		object.WithVerifyPut(s.VerifyPut),
	}
	if s.CacheDir != "" {
		cache, err := blockcache.New(s.CacheDir)
		if err != nil {
			return err
		}
		opts = append(opts, object.WithBlockCache(cache))
	}

	rpc := kubo.NewClient(s.APIURL, kubo.WithTimeout(s.APITimeout))
	a.store = object.NewStore(rpc, opts...)
	log.Debugw("configured", "api", s.APIURL, "cache", s.CacheDir, "encoding", s.DataEncoding)
	return nil
}

// bindFlags lets flags that were set on the command line override the file
// and environment.
func bindFlags(v *viper.Viper, root *cobra.Command) error {
	for name, key := range flagKeys {
		f := root.PersistentFlags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}
