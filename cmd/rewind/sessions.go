package main

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/aretw0/rewind"
	"github.com/aretw0/rewind/pkg/adapters/memory"
	redisAdapter "github.com/aretw0/rewind/pkg/adapters/redis"
	"github.com/aretw0/rewind/pkg/observability"
	"github.com/aretw0/rewind/pkg/persistence/middleware"
	"github.com/aretw0/rewind/pkg/ports"
	"github.com/aretw0/rewind/pkg/session"
	"github.com/spf13/cobra"
)

// addJournalFlags registers the flags shared by every command that reads or hosts sessions.
func addJournalFlags(cmd *cobra.Command) {
	cmd.Flags().String("redis-addr", "", "Redis address for the shared journal and session locks (in-memory when empty)")
	cmd.Flags().String("redis-password", "", "Redis password")
	cmd.Flags().Int("redis-db", 0, "Redis database")
	cmd.Flags().String("journal-prefix", "rewind:journal:", "Key prefix for journal records")
	cmd.Flags().Duration("journal-ttl", 0, "Expire idle session journals after this duration (0 keeps them)")
	cmd.Flags().String("journal-channel", "rewind:events", "Pub/Sub channel journal records are published on (empty disables)")
	cmd.Flags().String("journal-key", "", "Base64 AES-256 key encrypting entry names in the journal")
	cmd.Flags().StringSlice("redact", nil, "Mask journal entry names matching these patterns")
}

// journalHandle bundles the configured journal with the raw redis journal behind it, if any.
type journalHandle struct {
	ports.Journal
	shared *redisAdapter.Journal
	locker *redisAdapter.Locker
}

func (h *journalHandle) Close() error {
	if h.shared == nil {
		return nil
	}
	return h.shared.Close()
}

// openJournal builds the journal selected by the flags, wrapped by the configured middleware.
func openJournal(cmd *cobra.Command) (*journalHandle, error) {
	mws, err := journalMiddleware(cmd)
	if err != nil {
		return nil, err
	}

	addr, _ := cmd.Flags().GetString("redis-addr")
	if addr == "" {
		return &journalHandle{Journal: middleware.Chain(memory.NewJournal(), mws...)}, nil
	}

	password, _ := cmd.Flags().GetString("redis-password")
	db, _ := cmd.Flags().GetInt("redis-db")
	prefix, _ := cmd.Flags().GetString("journal-prefix")
	ttl, _ := cmd.Flags().GetDuration("journal-ttl")
	channel, _ := cmd.Flags().GetString("journal-channel")

	opts := []redisAdapter.Option{redisAdapter.WithPrefix(prefix), redisAdapter.WithChannel(channel)}
	if ttl > 0 {
		opts = append(opts, redisAdapter.WithTTL(ttl))
	}
	shared := redisAdapter.New(addr, password, db, opts...)
	if err := shared.Client().Ping(cmd.Context()).Err(); err != nil {
		_ = shared.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return &journalHandle{
		Journal: middleware.Chain(shared, mws...),
		shared:  shared,
		locker:  redisAdapter.NewLocker(shared.Client(), "rewind:lock:"),
	}, nil
}

func journalMiddleware(cmd *cobra.Command) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if patterns, _ := cmd.Flags().GetStringSlice("redact"); len(patterns) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(patterns))
	}
	if encoded, _ := cmd.Flags().GetString("journal-key"); encoded != "" {
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid --journal-key: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("invalid --journal-key: want 32 bytes, got %d", len(key))
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}
	return mws, nil
}

// newSessions builds a session manager over the configured journal.
func newSessions(cmd *cobra.Command, metrics *observability.Metrics) (*session.Manager, *journalHandle, error) {
	journal, err := openJournal(cmd)
	if err != nil {
		return nil, nil, err
	}

	opts := []session.Option{session.WithLogger(logger)}
	if journal.locker != nil {
		opts = append(opts, session.WithLocker(journal.locker), session.WithLockTTL(10*time.Second))
	}
	if metrics != nil {
		opts = append(opts, session.WithMetrics(metrics))
	}
	wsOpts := []rewind.Option{rewind.WithLogger(logger)}
	if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
		wsOpts = append(wsOpts, rewind.WithLimit(limit))
	}
	opts = append(opts, session.WithWorkspaceOptions(wsOpts...))

	return session.NewManager(journal, opts...), journal, nil
}
