// Package archive exports settled rounds to object storage as JSONL. The
// last exported epoch is kept in the ledger so each round is written once.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/ledger"
)

const (
	cursorKey = "archive/cursor"

	// Objects above multipartThreshold go up in partSize chunks.
	multipartThreshold = 8 << 20
	partSize           = 5 << 20
)

// RoundSource reads consecutive rounds; *market.Market satisfies it.
type RoundSource interface {
	Rounds(ctx context.Context, from uint64, limit int) ([]domain.Round, error)
}

// Archiver uploads settled rounds in epoch order.
type Archiver struct {
	rounds RoundSource
	host   *ledger.Host
	writer domain.BlobWriter
	reader domain.BlobReader
	batch  int
	logger *slog.Logger
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithReader lets Run skip the upload when the object is already in the
// bucket, as after a crash between upload and cursor save.
func WithReader(r domain.BlobReader) Option {
	return func(a *Archiver) { a.reader = r }
}

// New creates an Archiver writing up to batch rounds per object.
func New(rounds RoundSource, host *ledger.Host, writer domain.BlobWriter, batch int, logger *slog.Logger, opts ...Option) *Archiver {
	if batch <= 0 {
		batch = 500
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Archiver{
		rounds: rounds,
		host:   host,
		writer: writer,
		batch:  batch,
		logger: logger.With(slog.String("component", "archiver")),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Cursor is the last archived epoch, 0 if none.
func (a *Archiver) Cursor(ctx context.Context) (uint64, error) {
	var c uint64
	if _, err := ledger.LoadOr(ctx, a.host.Store(), cursorKey, &c); err != nil {
		return 0, fmt.Errorf("archive: load cursor: %w", err)
	}
	return c, nil
}

// ObjectPath is where rounds first..last are stored.
func ObjectPath(first, last uint64) string {
	return fmt.Sprintf("archive/rounds/%s-%s.jsonl", ledger.EpochKey(first), ledger.EpochKey(last))
}

// Run exports the next run of settled rounds after the cursor and returns
// how many were written. It stops at the first round not yet settled.
func (a *Archiver) Run(ctx context.Context) (int, error) {
	cursor, err := a.Cursor(ctx)
	if err != nil {
		return 0, err
	}
	rounds, err := a.rounds.Rounds(ctx, cursor+1, a.batch)
	if err != nil {
		return 0, fmt.Errorf("archive: list rounds after %d: %w", cursor, err)
	}

	n := 0
	for n < len(rounds) && rounds[n].Status == domain.RoundClosed && rounds[n].Settled {
		n++
	}
	if n == 0 {
		a.logger.DebugContext(ctx, "nothing to archive", slog.Uint64("cursor", cursor))
		return 0, nil
	}
	rounds = rounds[:n]

	buf, err := marshalJSONL(rounds)
	if err != nil {
		return 0, fmt.Errorf("archive: encode: %w", err)
	}
	first, last := rounds[0].Epoch, rounds[n-1].Epoch
	path := ObjectPath(first, last)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, err
	}

	err = a.host.Update(ctx, func(ctx context.Context, tx *ledger.Tx) error {
		return ledger.Save(ctx, tx, cursorKey, last)
	})
	if err != nil {
		return 0, fmt.Errorf("archive: save cursor: %w", err)
	}

	a.logger.InfoContext(ctx, "rounds archived",
		slog.String("path", path),
		slog.Uint64("first", first),
		slog.Uint64("last", last),
	)
	return n, nil
}

func (a *Archiver) upload(ctx context.Context, path string, buf []byte) error {
	if a.reader != nil {
		ok, err := a.reader.Exists(ctx, path)
		if err != nil {
			return fmt.Errorf("archive: check %s: %w", path, err)
		}
		if ok {
			a.logger.WarnContext(ctx, "archive object already present, advancing cursor", slog.String("path", path))
			return nil
		}
	}
	var err error
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), partSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return fmt.Errorf("archive: upload %s: %w", path, err)
	}
	return nil
}

// RunCron runs the archiver on a 5-field cron schedule until ctx is done.
// A run that fills its batch is repeated straight away.
func (a *Archiver) RunCron(ctx context.Context, expr string) error {
	sched, err := parseCron(expr)
	if err != nil {
		return fmt.Errorf("archive: cron %q: %w", expr, err)
	}
	a.logger.Info("archiver cron started", slog.String("cron", expr))

	for {
		next, err := nextRun(sched, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("archive: cron %q: %w", expr, err)
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
		}

		for {
			n, err := a.Run(ctx)
			if err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
				break
			}
			if n < a.batch {
				break
			}
		}
	}
}

// marshalJSONL writes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	for i, rec := range records {
		b, err := sonnet.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
		buf.Write(b)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
