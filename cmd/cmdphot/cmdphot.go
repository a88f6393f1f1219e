package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/abworrall/cmdphot/pkg/photom"
	"github.com/abworrall/cmdphot/pkg/session"
)

var (
	fConfig    string
	fVerbosity int
	fDB        string
	fSession   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		photom.Log.Error().Err(err).Msg("cmdphot")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cmdphot",
		Short: "Reduce two-band CCD frames into a colour-magnitude diagram",
		Long: `cmdphot calibrates and stacks the light frames of two bands, finds the
stars common to both masters and measures them. The result is kept in a
session database, where stars can be labelled with known magnitudes and
(de)selected before exporting the colour-magnitude diagram.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			photom.SetVerbosity(fVerbosity)
			return resolveDB(cmd)
		},
	}

	root.PersistentFlags().StringVar(&fConfig, "config", "", "config file (.yaml or .toml)")
	root.PersistentFlags().CountVarP(&fVerbosity, "verbose", "v", "more logging (-v debug, -vv trace)")
	root.PersistentFlags().StringVar(&fDB, "db", "cmdphot.db", "session database")

	root.AddCommand(reduceCmd(), labelCmd(), selectCmd(), toggleCmd(), calibrateCmd(), serveCmd(), sessionsCmd())
	return root
}

// resolveDB takes the session database from the config file's
// session_db, unless --db was given.
func resolveDB(cmd *cobra.Command) error {
	if f := cmd.Flag("db"); f != nil && f.Changed {
		return nil
	}
	if fConfig == "" {
		return nil
	}
	cfg, err := photom.LoadConfig(fConfig)
	if err != nil {
		return err
	}
	if cfg.SessionDB != "" {
		fDB = cfg.SessionDB
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func openStore() (*session.Store, error) {
	return session.Open(fDB)
}

func sessionFlag(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&fSession, "session", "s", "latest", "session id, unique id prefix, or 'latest'")
}

// withSession opens the store and resolves --session.
func withSession(fn func(ctx context.Context, store *session.Store, id string) error) error {
	ctx, cancel := signalContext()
	defer cancel()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := store.Resolve(ctx, fSession)
	if err != nil {
		return err
	}
	return fn(ctx, store, id)
}

// loadConfig reads --config if given, then applies any flags that were
// set explicitly on the command line.
func loadConfig(cmd *cobra.Command, flagged photom.Config) (photom.Config, error) {
	cfg := photom.NewConfig()
	if fConfig != "" {
		c, err := photom.LoadConfig(fConfig)
		if err != nil {
			return cfg, err
		}
		cfg = c
	}

	overrides := map[string]func(){
		"short":       func() { cfg.ShortColour = flagged.ShortColour },
		"long":        func() { cfg.LongColour = flagged.LongColour },
		"light-short": func() { cfg.PathLightShort = flagged.PathLightShort },
		"light-long":  func() { cfg.PathLightLong = flagged.PathLightLong },
		"dark":        func() { cfg.DoDark = flagged.DoDark },
		"flat":        func() { cfg.DoFlat = flagged.DoFlat },
		"dark-flat":   func() { cfg.DoDarkFlat = flagged.DoDarkFlat },
		"dark-short":  func() { cfg.PathDarkShort = flagged.PathDarkShort },
		"dark-long":   func() { cfg.PathDarkLong = flagged.PathDarkLong },
		"flat-short":  func() { cfg.PathFlatShort = flagged.PathFlatShort },
		"flat-long":   func() { cfg.PathFlatLong = flagged.PathFlatLong },
		"dark-flats":  func() { cfg.PathDarkFlat = flagged.PathDarkFlat },
		"fwhm":        func() { cfg.FWHM = flagged.FWHM },
		"ratio":       func() { cfg.Ratio = flagged.Ratio },
		"threshold":   func() { cfg.Threshold = flagged.Threshold },
		"r-aperture":  func() { cfg.RAperture = flagged.RAperture },
		"result":      func() { cfg.PathResult = flagged.PathResult },
		"n-stars-min": func() { cfg.NStarsMin = flagged.NStarsMin },
		"combine":     func() { cfg.Combine = flagged.Combine },
		"workers":     func() { cfg.Workers = flagged.Workers },
		"preview":     func() { cfg.Preview = flagged.Preview },
		"tonemapper":  func() { cfg.Tonemapper = flagged.Tonemapper },
	}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if set, ok := overrides[f.Name]; ok {
			set()
		}
	})

	if fVerbosity > cfg.Verbosity {
		cfg.Verbosity = fVerbosity
	}
	photom.SetVerbosity(cfg.Verbosity)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func reduceCmd() *cobra.Command {
	flagged := photom.NewConfig()

	cmd := &cobra.Command{
		Use:   "reduce",
		Short: "Calibrate, stack and register the frames, then find and measure the stars",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flagged)
			if err != nil {
				return err
			}
			if cfg.Verbosity > 0 {
				photom.Log.Debug().Msgf("Final configuration:-\n\n%s", cfg.AsYaml())
			}

			ctx, cancel := signalContext()
			defer cancel()

			s, err := photom.NewSession(cfg)
			if err != nil {
				return err
			}
			res, err := s.Run(ctx)
			for _, w := range res.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			if err != nil {
				return err
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := store.Create(ctx, cfg, res, s.Now())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "session %s: %d stars, masters %v\n", id, len(res.Stars), res.MasterFiles)
			printStars(cmd, res.Stars)
			return nil
		},
	}

	bindConfigFlags(cmd.Flags(), &flagged)

	return cmd
}

// bindConfigFlags binds the reduction parameters to f; loadConfig only
// takes the ones that were set.
func bindConfigFlags(f *pflag.FlagSet, flagged *photom.Config) {
	f.StringVar(&flagged.ShortColour, "short", flagged.ShortColour, "short wave band name")
	f.StringVar(&flagged.LongColour, "long", flagged.LongColour, "long wave band name")
	f.StringVar(&flagged.PathLightShort, "light-short", "", "short wave light frames (dir, glob or file)")
	f.StringVar(&flagged.PathLightLong, "light-long", "", "long wave light frames (dir, glob or file)")
	f.BoolVar(&flagged.DoDark, "dark", false, "dark-correct the light frames")
	f.BoolVar(&flagged.DoFlat, "flat", false, "flat-field the light frames")
	f.BoolVar(&flagged.DoDarkFlat, "dark-flat", false, "dark-correct the flats")
	f.StringVar(&flagged.PathDarkShort, "dark-short", "", "short wave dark frames")
	f.StringVar(&flagged.PathDarkLong, "dark-long", "", "long wave dark frames")
	f.StringVar(&flagged.PathFlatShort, "flat-short", "", "short wave flat frames")
	f.StringVar(&flagged.PathFlatLong, "flat-long", "", "long wave flat frames")
	f.StringVar(&flagged.PathDarkFlat, "dark-flats", "", "dark frames for the flats")
	f.Float64Var(&flagged.FWHM, "fwhm", flagged.FWHM, "star FWHM, in pixels")
	f.Float64Var(&flagged.Ratio, "ratio", flagged.Ratio, "minor/major axis ratio of the detection kernel")
	f.Float64Var(&flagged.Threshold, "threshold", flagged.Threshold, "detection threshold, in background sigmas")
	f.Float64Var(&flagged.RAperture, "r-aperture", flagged.RAperture, "aperture radius, in FWHMs")
	f.StringVar(&flagged.PathResult, "result", flagged.PathResult, "directory for masters, previews and tables")
	f.IntVar(&flagged.NStarsMin, "n-stars-min", flagged.NStarsMin, "fail if fewer stars are found in both masters")
	f.StringVar(&flagged.Combine, "combine", flagged.Combine, "how to stack: median or mean")
	f.IntVar(&flagged.Workers, "workers", 0, "worker goroutines (default: number of CPUs)")
	f.BoolVar(&flagged.Preview, "preview", false, "write a preview of the short wave master with the stars marked")
	f.StringVar(&flagged.Tonemapper, "tonemapper", flagged.Tonemapper, "preview tonemapper: "+photom.ListTonemappers())
}

func printStars(cmd *cobra.Command, stars photom.Stars) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tX\tY\tFLUX SHORT\tFLUX LONG\tSELECTED\tLABEL")
	for _, s := range stars {
		label := "-"
		if s.Label != nil {
			label = fmt.Sprintf("%.3f / %.3f", s.Label.Short, s.Label.Long)
		}
		fmt.Fprintf(tw, "%03d\t%.1f\t%.1f\t%.1f\t%.1f\t%v\t%s\n", s.Index, s.X, s.Y, s.Flux[0], s.Flux[1], s.Selected, label)
	}
	tw.Flush()
}

func parseIndex(s string) (int, error) {
	idx, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("star index %q: %w", s, photom.ErrUnknownStar)
	}
	return idx, nil
}

func parseMag(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("magnitude %q: %w", s, photom.ErrInvalidLabel)
	}
	return v, nil
}

func labelCmd() *cobra.Command {
	var fFile, fDump string

	cmd := &cobra.Command{
		Use:   "label [<index> <short-mag> <long-mag>]",
		Short: "Label a star with its standard magnitudes (0 0 removes the label)",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 3 {
				return fmt.Errorf("want <index> <short-mag> <long-mag>, or --file / --dump")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(ctx context.Context, store *session.Store, id string) error {
				var apply func(photom.Stars) error

				switch {
				case len(args) == 3:
					idx, err := parseIndex(args[0])
					if err != nil {
						return err
					}
					short, err := parseMag(args[1])
					if err != nil {
						return err
					}
					long, err := parseMag(args[2])
					if err != nil {
						return err
					}
					apply = func(ss photom.Stars) error { return ss.SetLabel(idx, short, long) }

				case fFile != "":
					lf, err := session.LoadLabels(fFile)
					if err != nil {
						return err
					}
					apply = lf.Apply

				case fDump != "":
					stars, err := store.Stars(ctx, id)
					if err != nil {
						return err
					}
					if err := session.LabelsFromStars(stars).Save(fDump); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "wrote %d stars to %s\n", len(stars), fDump)
					return nil

				default:
					return fmt.Errorf("nothing to do: give <index> <short-mag> <long-mag>, --file or --dump")
				}

				stars, err := store.UpdateStars(ctx, id, apply)
				if err != nil {
					return err
				}
				printStars(cmd, stars)
				return nil
			})
		},
	}

	sessionFlag(cmd)
	cmd.Flags().StringVar(&fFile, "file", "", "apply the labels in this TOML file")
	cmd.Flags().StringVar(&fDump, "dump", "", "write the current labels to this TOML file, for editing")
	return cmd
}

func selectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select <index> <true|false>",
		Short: "Include or exclude a star from the diagram",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			selected, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("selection %q: want true or false", args[1])
			}

			return withSession(func(ctx context.Context, store *session.Store, id string) error {
				stars, err := store.UpdateStars(ctx, id, func(ss photom.Stars) error {
					return ss.SetSelected(idx, selected)
				})
				if err != nil {
					return err
				}
				printStars(cmd, stars)
				return nil
			})
		},
	}
	sessionFlag(cmd)
	return cmd
}

func toggleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toggle",
		Short: "Flip the selection of every star",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(ctx context.Context, store *session.Store, id string) error {
				stars, err := store.UpdateStars(ctx, id, func(ss photom.Stars) error {
					ss.ToggleSelection()
					return nil
				})
				if err != nil {
					return err
				}
				printStars(cmd, stars)
				return nil
			})
		},
	}
	sessionFlag(cmd)
	return cmd
}

func calibrateCmd() *cobra.Command {
	var fReddening float64
	var fLabels string
	var fWatch bool

	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Calibrate the magnitudes and export the colour-magnitude diagram",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if fWatch && fLabels == "" {
				return fmt.Errorf("--watch needs --labels")
			}

			return withSession(func(ctx context.Context, store *session.Store, id string) error {
				cfg, err := store.Config(ctx, id)
				if err != nil {
					return err
				}
				if !cmd.Flags().Changed("reddening") {
					fReddening = cfg.Reddening
				}

				export := func(ctx context.Context) error {
					stars, err := store.Stars(ctx, id)
					if fLabels != "" {
						lf, lerr := session.LoadLabels(fLabels)
						if lerr != nil {
							return lerr
						}
						stars, err = store.UpdateStars(ctx, id, lf.Apply)
					}
					if err != nil {
						return err
					}

					d, filename, err := photom.ExportDiagram(cfg, stars, fReddening, time.Now())
					if err != nil {
						return err
					}
					printDiagram(cmd, d)
					fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", filename)
					return nil
				}

				if !fWatch {
					return export(ctx)
				}
				return session.NewLabelsWatcher(fLabels, export).Run(ctx)
			})
		},
	}

	sessionFlag(cmd)
	cmd.Flags().Float64Var(&fReddening, "reddening", 0, "colour excess E(b1-b2) to subtract from the colour index (default: the session config)")
	cmd.Flags().StringVar(&fLabels, "labels", "", "apply the labels in this TOML file first")
	cmd.Flags().BoolVar(&fWatch, "watch", false, "recalibrate whenever the labels file changes")
	return cmd
}

func printDiagram(cmd *cobra.Command, d photom.Diagram) {
	if d.Arbitrary && d.RefStar >= 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no labelled stars: magnitudes are relative to star %03d at %.1f\n", d.RefStar, photom.ArbitraryRefMag)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\t%s\t%s\t%s\n", d.XLabel, d.YLabel, "IN PLOT")
	for _, r := range d.Rows {
		plotted := !math.IsNaN(r.ColourIndex0) && !math.IsNaN(r.MagLong)
		fmt.Fprintf(tw, "%03d\t%8.4f\t%8.4f\t%v\n", r.Index, r.ColourIndex0, r.MagLong, plotted)
	}
	tw.Flush()
}

func serveCmd() *cobra.Command {
	var fAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the sessions over HTTP, for labelling and plotting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			srv := &http.Server{Addr: fAddr, Handler: session.NewRouter(store)}
			go func() {
				<-ctx.Done()
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				srv.Shutdown(shutdownCtx)
			}()

			photom.Log.Info().Str("addr", fAddr).Str("db", store.Path()).Msg("serving")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fAddr, "addr", ":8080", "listen address")
	return cmd
}

func sessionsCmd() *cobra.Command {
	var fDelete string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List the stored sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if fDelete != "" {
				id, err := store.Resolve(ctx, fDelete)
				if err != nil {
					return err
				}
				if err := store.Delete(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
				return nil
			}

			list, err := store.List(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tBANDS\tSTARS\tWARNINGS")
			for _, info := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s-%s\t%d\t%d\n", info.ID, info.Created.Local().Format(time.RFC3339),
					info.ShortBand, info.LongBand, info.NStars, len(info.Warnings))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&fDelete, "delete", "", "delete this session")
	return cmd
}
