package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnrollmentChannel is the NOTIFY channel fired by the enrollment triggers
const EnrollmentChannel = "enrollment_changed"

// NotifyConn is a connection that can LISTEN. *pgx.Conn satisfies it.
type NotifyConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
}

// ConnectFunc acquires a dedicated connection and returns its release func
type ConnectFunc func(ctx context.Context) (NotifyConn, func(), error)

// EnrollmentHandler reacts to enrollment changes. identity.Loader
// satisfies it.
type EnrollmentHandler interface {
	Refresh(ctx context.Context, identityID string) error
	Reload(ctx context.Context) (int, error)
}

// EnrollmentListener relays enrollment_changed notifications to a handler.
// A notification with an identity id refreshes that identity; an empty
// payload reloads everything. After a reconnect the whole population is
// reloaded since notifications may have been missed.
type EnrollmentListener struct {
	connect ConnectFunc
	handler EnrollmentHandler
	logger  *slog.Logger
	backoff time.Duration
}

func NewEnrollmentListener(connect ConnectFunc, handler EnrollmentHandler, logger *slog.Logger) *EnrollmentListener {
	return &EnrollmentListener{
		connect: connect,
		handler: handler,
		logger:  logger.With(slog.String("component", "enrollment_listener")),
		backoff: 2 * time.Second,
	}
}

// PoolConnector adapts a pgx pool into a ConnectFunc
func PoolConnector(pool *pgxpool.Pool) ConnectFunc {
	return func(ctx context.Context) (NotifyConn, func(), error) {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return nil, nil, err
		}
		return conn.Conn(), conn.Release, nil
	}
}

// Run listens until ctx is cancelled
func (l *EnrollmentListener) Run(ctx context.Context) {
	first := true
	for {
		err := l.listen(ctx, !first)
		if ctx.Err() != nil {
			return
		}
		first = false

		l.logger.Warn("enrollment listener disconnected", slog.Any("error", err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.backoff):
		}
	}
}

func (l *EnrollmentListener) listen(ctx context.Context, reload bool) error {
	conn, release, err := l.connect(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{EnrollmentChannel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", EnrollmentChannel, err)
	}
	l.logger.Info("listening for enrollment changes")

	if reload {
		if _, err := l.handler.Reload(ctx); err != nil {
			l.logger.Error("reload after reconnect failed", slog.Any("error", err))
		}
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.handle(ctx, n.Payload)
	}
}

func (l *EnrollmentListener) handle(ctx context.Context, identityID string) {
	if identityID == "" {
		if _, err := l.handler.Reload(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Error("enrollment reload failed", slog.Any("error", err))
		}
		return
	}

	if err := l.handler.Refresh(ctx, identityID); err != nil && !errors.Is(err, context.Canceled) {
		l.logger.Error("enrollment refresh failed",
			slog.String("identity_id", identityID),
			slog.Any("error", err),
		)
	}
}
