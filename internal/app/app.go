package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"chunkdb/internal/cache"
	"chunkdb/internal/chunk"
	"chunkdb/internal/config"
	"chunkdb/internal/database"
	"chunkdb/internal/encryption"
	"chunkdb/internal/model"
	"chunkdb/internal/staging"
	"chunkdb/internal/tracing"
)

// Options tune how a ChunkApp is assembled.
type Options struct {
	// SkipMigrationCheck opens the database even if its schema is behind.
	// Only the migration commands set it.
	SkipMigrationCheck bool

	// Stderr receives a copy of every log line. Nil logs to the file only.
	Stderr io.Writer

	// Version is reported as the service version on exported spans.
	Version string
}

// ChunkApp is the application layer between the CLI and the chunk protocol.
// It constructs all dependencies from config, exposes high-level operations,
// and releases every resource on Close.
type ChunkApp struct {
	cfg   *config.Config
	db    *database.DB
	store *database.ChunkStore[*model.ChunkRow]
	files *chunk.Files[*model.ChunkRow]
	spool *staging.Area
	keys  *encryption.KeyPair
	mode  chunk.CommitMode

	closeCache      func() error
	shutdownTracing tracing.ShutdownFunc

	op      *Operation
	logger  *slog.Logger
	logFile *os.File
}

// NewChunkApp creates a fully wired ChunkApp from the given config.
// operation names the CLI command being run (e.g. "put", "ls") and parameters
// is recorded alongside it. The caller must call Close when done.
func NewChunkApp(ctx context.Context, cfg *config.Config, operation, parameters string, opts Options) (*ChunkApp, error) {
	mode, err := chunk.ParseCommitMode(cfg.Chunks.Mode)
	if err != nil {
		return nil, fmt.Errorf("chunks.mode: %w", err)
	}
	hasher, err := newHasher(cfg.Chunks.Hash)
	if err != nil {
		return nil, err
	}
	if cfg.Chunks.VerifyHashes && hasher == nil {
		return nil, errors.New("chunks.verify_hashes requires chunks.hash")
	}
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	op := NewOperation(operation, parameters, time.Now())
	logger, logFile, err := newLogger(cfg.LogDir, op.ID, level, opts.Stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	spool, err := staging.NewStagingAreaFromConfig(cfg.Staging)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating staging area: %w", err)
	}

	a := &ChunkApp{
		cfg:     cfg,
		spool:   spool,
		keys:    encryption.NewKeyPair(cfg.Encryption),
		mode:    mode,
		op:      op,
		logger:  logger,
		logFile: logFile,
	}
	abort := func(err error) (*ChunkApp, error) {
		if a.shutdownTracing != nil {
			_ = a.shutdownTracing(ctx)
		}
		a.release()
		return nil, err
	}

	a.shutdownTracing, err = tracing.Init(ctx, cfg.Tracing, opts.Version)
	if err != nil {
		return abort(fmt.Errorf("initializing tracing: %w", err))
	}

	a.db, err = database.NewDatabaseFromConfig(ctx, cfg.Database)
	if err != nil {
		return abort(fmt.Errorf("creating database: %w", err))
	}

	// An in-memory database starts empty on every run.
	if cfg.Database.Type == "memory" {
		if err := a.db.Migrate(); err != nil {
			return abort(fmt.Errorf("migrating in-memory database: %w", err))
		}
	} else if !opts.SkipMigrationCheck {
		if err := a.db.CheckMigrations(); err != nil {
			return abort(fmt.Errorf("database schema out of date (run 'chunkdb db migrate'): %w", err))
		}
	}

	infoCache, closeCache, err := cache.NewInfoCacheFromConfig(ctx, cfg.Cache)
	if err != nil {
		return abort(fmt.Errorf("creating cache: %w", err))
	}
	a.closeCache = closeCache

	a.store = database.NewDefaultStore(a.db)
	a.files = chunk.NewFiles[*model.ChunkRow](a.store, model.NewChunkRow, &slogAdapter{l: logger},
		chunk.RealClock{}, chunk.UUIDGenerator{}, chunk.FilesOptions{
			Hasher:       hasher,
			Cache:        infoCache,
			Strict:       cfg.Chunks.Strict,
			VerifyHashes: cfg.Chunks.VerifyHashes,
		})

	logger.Debug("operation started", "operation", operation, "parameters", parameters,
		"database", cfg.Database.Type, "mode", mode.String())
	return a, nil
}

func newHasher(name string) (chunk.Hasher, error) {
	switch name {
	case "":
		return nil, nil
	case "sha256":
		return chunk.SHA256Hasher{}, nil
	default:
		return nil, fmt.Errorf("unknown chunks.hash: %q", name)
	}
}

// Start opens the operation span. Pass the returned context to every
// operation so its queries are traced under the command.
func (a *ChunkApp) Start(ctx context.Context) context.Context {
	return a.op.Start(ctx)
}

// Operation returns the record of the running command.
func (a *ChunkApp) Operation() *Operation {
	return a.op
}

// Keys returns the configured age key files.
func (a *ChunkApp) Keys() *encryption.KeyPair {
	return a.keys
}

// track marks the operation failed when err is not nil and returns err.
func (a *ChunkApp) track(err error) error {
	a.op.Fail(err)
	return err
}

// commit saves staged rows in Deferred mode. Eager writes are already durable.
func (a *ChunkApp) commit(ctx context.Context) error {
	if a.mode != chunk.Deferred {
		return nil
	}
	if err := a.files.SaveChanges(ctx); err != nil {
		return fmt.Errorf("saving changes: %w", err)
	}
	return nil
}

func (a *ChunkApp) writeRequest(name, mimeType string) chunk.WriteRequest {
	return chunk.WriteRequest{
		Name:      name,
		MimeType:  mimeType,
		ChunkSize: a.cfg.Chunks.Size,
		Mode:      a.mode,
	}
}

// PutFile stores the file at path. Empty name and mimeType are derived from the path.
func (a *ChunkApp) PutFile(ctx context.Context, path, name, mimeType string) (*chunk.FileInfo, error) {
	info, err := a.files.WriteFile(ctx, path, a.writeRequest(name, mimeType))
	if err != nil {
		return nil, a.track(err)
	}
	if err := a.commit(ctx); err != nil {
		return nil, a.track(err)
	}
	a.logger.Info("file stored", "file_id", info.ID, "name", info.Name, "bytes", info.TotalBytesLength)
	return info, nil
}

// PutReader stores size bytes read from r. With a negative size, r is
// measured by seeking, or spooled through the staging area if it cannot seek.
func (a *ChunkApp) PutReader(ctx context.Context, r io.Reader, size int64, name, mimeType string) (*chunk.FileInfo, error) {
	if _, seekable := r.(io.Seeker); size < 0 && !seekable {
		spool, err := a.spool.Stage(ctx, r)
		if err != nil {
			return nil, a.track(err)
		}
		defer spool.Close()
		r, size = spool, spool.Size()
	}

	if mimeType == "" {
		mimeType = chunk.MimeTypeByName(name)
	}
	info, err := a.files.Write(ctx, r, size, a.writeRequest(name, mimeType))
	if err != nil {
		return nil, a.track(err)
	}
	if err := a.commit(ctx); err != nil {
		return nil, a.track(err)
	}
	a.logger.Info("file stored", "file_id", info.ID, "name", info.Name, "bytes", info.TotalBytesLength)
	return info, nil
}

// PutEncrypted decrypts an age stream with opener and stores the plaintext.
// The plaintext is spooled first since its length is not known up front.
func (a *ChunkApp) PutEncrypted(ctx context.Context, r io.Reader, opener *encryption.Opener, name, mimeType string) (*chunk.FileInfo, error) {
	plain, err := opener.Open(r)
	if err != nil {
		return nil, a.track(err)
	}
	return a.PutReader(ctx, plain, -1, name, mimeType)
}

// Get writes the content of a stored file to w.
func (a *ChunkApp) Get(ctx context.Context, fileID string, w io.Writer) error {
	return a.track(a.files.ReadInto(ctx, fileID, w))
}

// GetEncrypted writes the content of a stored file to w as an age stream.
func (a *ChunkApp) GetEncrypted(ctx context.Context, fileID string, w io.Writer, sealer *encryption.Sealer) error {
	wc, err := sealer.Seal(w)
	if err != nil {
		return a.track(err)
	}
	if err := a.files.ReadInto(ctx, fileID, wc); err != nil {
		wc.Close()
		return a.track(err)
	}
	if err := wc.Close(); err != nil {
		return a.track(fmt.Errorf("finishing encryption: %w", err))
	}
	return nil
}

// Remove deletes every chunk of a stored file.
func (a *ChunkApp) Remove(ctx context.Context, fileID string) error {
	if err := a.files.Delete(ctx, fileID, a.mode); err != nil {
		return a.track(err)
	}
	if err := a.commit(ctx); err != nil {
		return a.track(err)
	}
	a.logger.Info("file removed", "file_id", fileID)
	return nil
}

// Info returns the metadata of a stored file.
func (a *ChunkApp) Info(ctx context.Context, fileID string) (*chunk.FileInfo, error) {
	info, err := a.files.Info(ctx, fileID)
	if err != nil {
		return nil, a.track(err)
	}
	return info, nil
}

// List returns one page of stored files.
func (a *ChunkApp) List(ctx context.Context, page, limit int, order chunk.ListOrder) (*chunk.Page, error) {
	p, err := a.files.List(ctx, page, limit, order)
	if err != nil {
		return nil, a.track(err)
	}
	return p, nil
}

// Verify checks the chain of a stored file.
func (a *ChunkApp) Verify(ctx context.Context, fileID string) (*chunk.ChainReport, error) {
	report, err := a.files.Verify(ctx, fileID)
	if err != nil {
		return nil, a.track(err)
	}
	if !report.OK() {
		a.logger.Warn("chain problems found", "file_id", fileID, "problems", len(report.Problems))
	}
	return report, nil
}

// Migrate brings the database schema up to date.
func (a *ChunkApp) Migrate() error {
	if err := a.db.Migrate(); err != nil {
		return a.track(err)
	}
	a.logger.Info("database migrated", "dialect", a.db.Dialect().Name)
	return nil
}

// MigrationStatus returns nil when the schema is current.
func (a *ChunkApp) MigrationStatus() error {
	return a.db.CheckMigrations()
}

// Snapshot copies the SQLite database to dest.
func (a *ChunkApp) Snapshot(dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return a.track(fmt.Errorf("snapshot destination %s already exists", dest))
	}
	if err := a.db.BackupTo(dest); err != nil {
		return a.track(err)
	}
	a.logger.Info("database snapshot written", "path", dest)
	return nil
}

// Close finishes the operation and closes all resources.
func (a *ChunkApp) Close(ctx context.Context) error {
	a.op.Finish()
	if a.op.Err != nil {
		a.logger.Error("operation failed", "operation", a.op.Name, "error", a.op.Err)
	} else {
		a.logger.Debug("operation finished", "operation", a.op.Name)
	}

	var errs []error
	if a.closeCache != nil {
		if err := a.closeCache(); err != nil {
			errs = append(errs, fmt.Errorf("closing cache: %w", err))
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flushing traces: %w", err))
		}
	}
	errs = append(errs, a.release())
	return errors.Join(errs...)
}

// release closes the database and the log file.
func (a *ChunkApp) release() error {
	var err error
	if a.db != nil {
		if cerr := a.db.Close(); cerr != nil {
			err = fmt.Errorf("closing database: %w", cerr)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return err
}
