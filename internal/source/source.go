// Package source fetches the external contact snapshot the local store is
// reconciled against. The wire format is vCard, obtained from a local file or
// a CardDAV/WebDAV endpoint; everything past decoding is opaque to the core.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-vcard"

	"github.com/lbrossard/keeptouch/internal/config"
	"github.com/lbrossard/keeptouch/internal/contact"
)

// Source produces the external contact set for reconciliation.
type Source interface {
	FetchAll(ctx context.Context) ([]contact.Contact, error)
}

// Config contains all parameters required to reach the vCard source.
type Config struct {
	Mode      string // config.SourceModeLocal or config.SourceModeWeb
	LocalPath string // Absolute path to the .vcf file
	WebURL    string // CardDAV or WebDAV URL
	WebUser   string // HTTP Basic Auth Username
	WebPass   string // HTTP Basic Auth Password
}

// VCardSource decodes contacts from a vCard stream.
type VCardSource struct {
	Config  Config
	Fetcher VCardFetcher // Interface for network abstraction.
}

// FetchAll acquires the configured stream and decodes every card that carries
// a phone number. Malformed cards are skipped so one bad entry never poisons
// the batch; unparseable birth dates leave the contact without a calendar key
// rather than dropping it.
func (s *VCardSource) FetchAll(ctx context.Context) ([]contact.Contact, error) {
	start := time.Now()
	log := slog.With(
		config.LogKeyComponent, config.CompSource,
		config.LogKeyMode, s.Config.Mode,
	)

	reader, err := s.acquireStream(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s: %w", config.ErrVCardParse, err)
	}
	// Best effort close. Errors in Close() for read-only streams are rarely actionable here.
	defer func() { _ = reader.Close() }()

	decoder := vcard.NewDecoder(reader)
	stats := struct{ processed, kept, withBday int }{0, 0, 0}
	var contacts []contact.Contact

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		card, err := decoder.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Log error but continue to next card to maximize data recovery
			slog.Warn(config.MsgSkippedCard,
				config.LogKeyComponent, config.CompSource,
				config.LogKeyError, err)
			continue
		}

		stats.processed++
		c, ok := decodeCard(card)
		if !ok {
			continue
		}
		stats.kept++
		if c.HasBirthday() {
			stats.withBday++
		}
		contacts = append(contacts, c)
	}

	log.Info(config.MsgSyncFinished,
		slog.Group(config.LogKeyStats,
			slog.Int(config.LogKeyTotal, stats.processed),
			slog.Int(config.LogKeyCount, stats.kept),
			slog.Int(config.LogKeyFound, stats.withBday),
		),
		config.LogKeyDuration, time.Since(start).Milliseconds(),
	)
	return contacts, nil
}

// acquireStream opens the appropriate data source based on configuration.
func (s *VCardSource) acquireStream(ctx context.Context) (io.ReadCloser, error) {
	switch s.Config.Mode {
	case config.SourceModeLocal:
		if s.Config.LocalPath == "" {
			return nil, errors.New(config.ErrLocalPathEmpty)
		}
		if ext := strings.ToLower(filepath.Ext(s.Config.LocalPath)); ext != config.ExtVCF && ext != config.ExtVCard {
			// Not fatal: the decoder decides whether the content is usable.
			slog.Warn(config.MsgOddSourceExt,
				config.LogKeyComponent, config.CompSource,
				config.LogKeyFile, s.Config.LocalPath,
			)
		}
		return os.Open(s.Config.LocalPath)
	case config.SourceModeWeb:
		if s.Config.WebURL == "" {
			return nil, errors.New(config.ErrWebURLEmpty)
		}
		if s.Fetcher == nil {
			return nil, errors.New(config.ErrFetcherMissing)
		}
		return s.Fetcher.Fetch(ctx, s.Config.WebURL, s.Config.WebUser, s.Config.WebPass)
	default:
		return nil, fmt.Errorf("%s: %q", config.ErrModeUnsupport, s.Config.Mode)
	}
}
