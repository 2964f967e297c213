// Package backup mirrors a user's ledger to an operator-configured chat
// after each mutation. Delivery is best-effort: failures are logged and
// never reach the mutation path.
package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"postledger/core/logger"
	"postledger/core/telegram/sender"
	"postledger/ledger"
)

// Notifier implements ledger.Notifier by sending the serialized ledger as a
// document to a secondary chat. The bot and dispatcher are bound after the
// Telegram runtime starts; notifications before Bind are skipped.
type Notifier struct {
	chatID   int64
	exporter ledger.Exporter

	bot        atomic.Pointer[tele.Bot]
	dispatcher atomic.Pointer[sender.Dispatcher]
}

// New returns a Notifier targeting chatID. A zero chatID disables delivery;
// callers should prefer ledger.NopNotifier in that case.
func New(chatID int64) *Notifier {
	return &Notifier{chatID: chatID}
}

// SetSource wires the exporter used to serialize ledgers. Called once the
// store exists; the store itself holds this Notifier, hence the late binding.
func (n *Notifier) SetSource(exporter ledger.Exporter) {
	n.exporter = exporter
}

// Bind attaches the running bot and outbound dispatcher.
func (n *Notifier) Bind(bot *tele.Bot, d *sender.Dispatcher) {
	n.bot.Store(bot)
	n.dispatcher.Store(d)
}

// Notify schedules a backup of the user's ledger. It never blocks and never
// reports failure to the caller.
func (n *Notifier) Notify(ctx context.Context, userID int64) {
	if n == nil || n.chatID == 0 || n.exporter == nil {
		return
	}
	bot := n.bot.Load()
	disp := n.dispatcher.Load()
	if bot == nil || disp == nil {
		logger.Debug(ctx, "backup", "backup.skip",
			slog.Int64("user_id", userID),
			slog.String("status", "skip"),
		)
		return
	}

	err := disp.Enqueue(ctx, "backup.send", "sendDocument", func() error {
		return n.deliver(ctx, bot, userID)
	})
	if err != nil {
		logger.Warn(ctx, "backup", "backup.enqueue_failed",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
	}
}

func (n *Notifier) deliver(ctx context.Context, bot *tele.Bot, userID int64) error {
	r, ok, err := n.exporter.Export(ctx, userID)
	if err != nil {
		logger.Error(ctx, "backup", "backup.export_failed",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return nil // not a network error; retrying will not help
	}
	if !ok {
		logger.Warn(ctx, "backup", "backup.skip",
			slog.Int64("user_id", userID),
			slog.String("status", "skip"),
		)
		return nil
	}
	data, err := io.ReadAll(r)
	_ = r.Close()
	if err != nil {
		logger.Error(ctx, "backup", "backup.read_failed",
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return nil
	}

	doc := &tele.Document{
		File:     tele.FromReader(bytes.NewReader(data)),
		FileName: Filename(userID, time.Now()),
	}
	if _, err := bot.Send(tele.ChatID(n.chatID), doc); err != nil {
		// Returned so the dispatcher applies its retry policy.
		return err
	}
	logger.Info(ctx, "backup", "backup.sent",
		slog.Int64("user_id", userID),
		slog.Int("count", len(data)),
	)
	return nil
}

// Filename builds the backup document name for a user at a point in time.
func Filename(userID int64, ts time.Time) string {
	return fmt.Sprintf("backup_user_%d_%s.xlsx", userID, ts.Format("20060102_150405"))
}
