package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"chunkdb/internal/app"
	"chunkdb/internal/chunk"
	"chunkdb/internal/config"
	"chunkdb/internal/encryption"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// configPath returns the --config flag or the default config location.
func configPath(cmd *cobra.Command) (string, *app.Defaults, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return "", nil, fmt.Errorf("getting defaults: %w", err)
	}
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p, defaults, nil
	}
	return defaults.ConfigPath, defaults, nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _, err := configPath(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.ReadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a ChunkApp with its operation started.
// The caller must defer closeApp.
func newApp(cmd *cobra.Command, operation, parameters string, opts app.Options) (*app.ChunkApp, context.Context, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		opts.Stderr = os.Stderr
	}
	opts.Version = version

	a, err := app.NewChunkApp(cmd.Context(), cfg, operation, parameters, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, a.Start(cmd.Context()), nil
}

func closeApp(a *app.ChunkApp) {
	if err := a.Close(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
}

var rootCmd = &cobra.Command{
	Use:           "chunkdb",
	Short:         "Store files as chains of chunks in a relational database",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, defaults, err := configPath(cmd)
		if err != nil {
			return err
		}

		cfg := config.NewConfig(defaults.BaseDir)
		cfg.Encryption = config.EncryptionConfig{
			RecipientsPath: filepath.Join(defaults.BaseDir, "keys", "recipients.txt"),
			IdentityPath:   filepath.Join(defaults.BaseDir, "keys", "identity.age"),
		}

		if err := config.Init(path, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", path)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Println("Run 'chunkdb db migrate' to create the schema.")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _, err := configPath(cmd)
		if err != nil {
			return err
		}
		cfg, err := config.ReadFromFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		chunkSize := cfg.Chunks.Size
		if chunkSize <= 0 {
			chunkSize = chunk.DefaultChunkSize
		}
		cacheType := cfg.Cache.Type
		if cacheType == "" {
			cacheType = "none"
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Database:   %s\n", cfg.Database.Type)
		fmt.Printf("Chunk Size: %s\n", humanize.IBytes(uint64(chunkSize)))
		fmt.Printf("Mode:       %s\n", cfg.Chunks.Mode)
		fmt.Printf("Hash:       %s\n", cfg.Chunks.Hash)
		fmt.Printf("Strict:     %t\n", cfg.Chunks.Strict)
		fmt.Printf("Cache:      %s\n", cacheType)
		fmt.Printf("Tracing:    %t\n", cfg.Tracing.Enabled)
		return nil
	},
}

// key command
var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage encryption keys",
}

var keyInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate an age key pair protected by a passphrase",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		keys := encryption.NewKeyPair(cfg.Encryption)
		if keys.IsConfigured() {
			return fmt.Errorf("key pair already exists at %s", cfg.Encryption.IdentityPath)
		}

		passphrase, err := readNewPassphrase()
		if err != nil {
			return err
		}
		if err := keys.Setup(passphrase); err != nil {
			return fmt.Errorf("creating key pair: %w", err)
		}

		fmt.Printf("Recipients: %s\n", cfg.Encryption.RecipientsPath)
		fmt.Printf("Identity:   %s\n", cfg.Encryption.IdentityPath)
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the chunk database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Bring the schema up to date",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp(cmd, "migrate", "", app.Options{SkipMigrationCheck: true})
		if err != nil {
			return err
		}
		defer closeApp(a)

		if err := a.Migrate(); err != nil {
			return err
		}
		fmt.Println("Database schema is up to date.")
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the schema is up to date",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp(cmd, "status", "", app.Options{SkipMigrationCheck: true})
		if err != nil {
			return err
		}
		defer closeApp(a)

		if err := a.MigrationStatus(); err != nil {
			return err
		}
		fmt.Println("Database schema is up to date.")
		return nil
	},
}

var dbSnapshotCmd = &cobra.Command{
	Use:   "snapshot DEST",
	Short: "Copy the SQLite database to DEST",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		a, _, err := newApp(cmd, "snapshot", dest, app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(a)

		if err := a.Snapshot(dest); err != nil {
			return err
		}
		fmt.Printf("Snapshot written to %s\n", dest)
		return nil
	},
}

// put command
var putCmd = &cobra.Command{
	Use:   "put FILE",
	Short: "Store a file (use - for stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		mimeType, _ := cmd.Flags().GetString("mime")
		decrypt, _ := cmd.Flags().GetBool("decrypt")
		quiet, _ := cmd.Flags().GetBool("quiet")

		a, ctx, err := newApp(cmd, "put", args[0], app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(a)

		var src io.Reader = os.Stdin
		size := int64(-1)
		if args[0] == "-" {
			// Pipes cannot seek; hiding the Seeker sends them through the staging area.
			if stat, err := os.Stdin.Stat(); err != nil || !stat.Mode().IsRegular() {
				src = struct{ io.Reader }{os.Stdin}
			}
		} else {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer f.Close()
			stat, err := f.Stat()
			if err != nil {
				return fmt.Errorf("stat %s: %w", args[0], err)
			}
			src, size = f, stat.Size()
			if name == "" {
				name = filepath.Base(args[0])
			}
		}
		if decrypt && filepath.Ext(name) == ".age" {
			name = name[:len(name)-len(".age")]
		}

		var info *chunk.FileInfo
		if decrypt {
			opener, err := unlock(a)
			if err != nil {
				return err
			}
			info, err = a.PutEncrypted(ctx, src, opener, name, mimeType)
			if err != nil {
				return err
			}
		} else if size >= 0 {
			bar := newTransferBar("put "+name+" ", size, quiet)
			info, err = a.PutReader(ctx, bar.Reader(src), size, name, mimeType)
			bar.Done(err)
			if err != nil {
				return err
			}
		} else {
			info, err = a.PutReader(ctx, src, size, name, mimeType)
			if err != nil {
				return err
			}
		}

		fmt.Println(info.ID)
		return nil
	},
}

func unlock(a *app.ChunkApp) (*encryption.Opener, error) {
	if !a.Keys().IsConfigured() {
		return nil, fmt.Errorf("no key pair configured (run 'chunkdb key init')")
	}
	passphrase, err := readPassphrase("Passphrase: ")
	if err != nil {
		return nil, err
	}
	return a.Keys().Unlock(passphrase)
}

// get command
var getCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Write a stored file to stdout or --out",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		out, _ := cmd.Flags().GetString("out")
		encrypt, _ := cmd.Flags().GetBool("encrypt")
		recipientKeys, _ := cmd.Flags().GetStringSlice("recipient")
		quiet, _ := cmd.Flags().GetBool("quiet")

		a, ctx, err := newApp(cmd, "get", args[0], app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(a)

		var sealer *encryption.Sealer
		if encrypt || len(recipientKeys) > 0 {
			sealer, err = newSealer(a, recipientKeys)
			if err != nil {
				return err
			}
		}

		var dst io.Writer = os.Stdout
		var bar *transferBar
		if out != "" {
			info, err := a.Info(ctx, args[0])
			if err != nil {
				return err
			}
			f, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
			if err != nil {
				return fmt.Errorf("creating %s: %w", out, err)
			}
			defer func() {
				if cerr := f.Close(); err == nil {
					err = cerr
				}
				if err != nil {
					os.Remove(out)
				}
			}()
			dst = f
			// Ciphertext length is not known up front, so only plain output gets a bar.
			if sealer == nil {
				bar = newTransferBar("get "+info.Name+" ", info.TotalBytesLength, quiet)
			}
		}

		switch {
		case sealer != nil:
			err = a.GetEncrypted(ctx, args[0], dst, sealer)
		case bar != nil:
			err = a.Get(ctx, args[0], bar.Writer(dst))
			bar.Done(err)
		default:
			err = a.Get(ctx, args[0], dst)
		}
		return err
	},
}

func newSealer(a *app.ChunkApp, recipientKeys []string) (*encryption.Sealer, error) {
	if len(recipientKeys) == 0 {
		return a.Keys().Sealer()
	}
	recipients, err := encryption.ParseRecipients(recipientKeys)
	if err != nil {
		return nil, err
	}
	return encryption.NewSealer(recipients...)
}

// rm command
var rmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a stored file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, err := newApp(cmd, "rm", args[0], app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(a)

		if err := a.Remove(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", args[0])
		return nil
	},
}

// info command
var infoCmd = &cobra.Command{
	Use:   "info ID",
	Short: "Show the metadata of a stored file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, err := newApp(cmd, "info", args[0], app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(a)

		info, err := a.Info(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("ID:      %s\n", info.ID)
		fmt.Printf("Name:    %s\n", info.Name)
		fmt.Printf("Type:    %s\n", info.MimeType)
		fmt.Printf("Size:    %s (%d bytes)\n", humanize.IBytes(uint64(info.TotalBytesLength)), info.TotalBytesLength)
		fmt.Printf("Stored:  %s (%s)\n", info.TimeStamp.Format("2006-01-02 15:04:05"), humanize.Time(info.TimeStamp))
		return nil
	},
}

// ls command
var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored files",
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		limit, _ := cmd.Flags().GetInt("limit")
		order := chunk.OldestFirst
		if newest, _ := cmd.Flags().GetBool("newest"); newest {
			order = chunk.NewestFirst
		}

		a, ctx, err := newApp(cmd, "ls", "", app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(a)

		p, err := a.List(ctx, page, limit, order)
		if err != nil {
			return err
		}

		if len(p.Items) == 0 {
			fmt.Println("No files stored.")
			return nil
		}

		for _, info := range p.Items {
			fmt.Printf("%s  %s  %9s  %s\n",
				info.ID,
				info.TimeStamp.Format("2006-01-02 15:04:05"),
				humanize.IBytes(uint64(info.TotalBytesLength)),
				info.Name,
			)
		}
		fmt.Printf("\npage %d of %d (%d files)\n", p.Page, p.TotalPages(), p.TotalItems)
		return nil
	},
}

// fsck command
var fsckCmd = &cobra.Command{
	Use:   "fsck ID",
	Short: "Check the chunk chain of a stored file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ctx, err := newApp(cmd, "fsck", args[0], app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(a)

		report, err := a.Verify(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s: %d chunks reached, %d rows, %d of %d bytes\n",
			report.FileID, report.Chunks, report.Rows, report.Bytes, report.DeclaredBytes)
		if report.OK() {
			fmt.Println("ok")
			return nil
		}
		for _, p := range report.Problems {
			fmt.Printf("  %s\n", p)
		}
		return fmt.Errorf("%d problem(s) found", len(report.Problems))
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default $CHUNKDB_CONFIG_PATH or ~/.config/chunkdb.toml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Copy log output to stderr")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// key subcommands
	keyCmd.AddCommand(keyInitCmd)

	// db subcommands
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbStatusCmd)
	dbCmd.AddCommand(dbSnapshotCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(putCmd)
	putCmd.Flags().String("name", "", "Stored file name (default: base name of FILE)")
	putCmd.Flags().String("mime", "", "Content type (default: derived from the name)")
	putCmd.Flags().Bool("decrypt", false, "FILE is an age stream for the configured identity")
	putCmd.Flags().BoolP("quiet", "q", false, "Hide the progress bar")
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().StringP("out", "o", "", "Write to this new file instead of stdout")
	getCmd.Flags().Bool("encrypt", false, "Encrypt output to the configured recipients")
	getCmd.Flags().StringSlice("recipient", nil, "Encrypt output to this age public key (repeatable)")
	getCmd.Flags().BoolP("quiet", "q", false, "Hide the progress bar")
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().Int("page", 1, "Page number, starting at 1")
	lsCmd.Flags().IntP("limit", "n", 50, "Files per page")
	lsCmd.Flags().BoolP("newest", "r", false, "List the most recently stored files first")
	rootCmd.AddCommand(fsckCmd)
}
