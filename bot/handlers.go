package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"postledger/core/buildinfo"
	"postledger/core/logger"
	tg "postledger/core/telegram"
	"postledger/core/telegram/callbacks"
	tgcommands "postledger/core/telegram/commands"
	tghelpers "postledger/core/telegram/helpers"
	"postledger/core/telegram/keyboard"
	"postledger/ledger"
)

// Callback keys routed through the registry.
const (
	cbPostStatus   = "post_status"
	cbStatusCustom = "status_custom"
	cbDeletePost   = "delete_post"
	cbNewLink      = "new_link"
	cbExportDB     = "export_db"
)

const (
	msgNoLink = "❌ Я не нашёл действительную ссылку на пост в Telegram в твоём сообщении.\n\n" +
		"Отправь ссылку, перешли пост из канала/группы (с username) или отправь медиа с подписью содержащей ссылку."
	msgStalePending = "❌ Ошибка: ссылка не найдена. Отправь ссылку заново."
	msgEmptyLedger  = "❌ Твоя база данных пуста. Добавь хотя бы один пост."
	msgAddFailed    = "❌ Произошла ошибка при добавлении поста. Попробуй ещё раз."
	msgDeleteFailed = "❌ Не удалось удалить пост. Возможно, его уже нет."
	msgUnknown      = "❌ Неизвестная команда. Попробуй снова."
	msgNewLinkReady = "✅ Готов принять новую ссылку. Отправь её сюда."
	msgAskCustom    = "✏️ Напиши статус для этого поста одним сообщением."
	msgRetryLater   = "❌ Хранилище временно недоступно. Попробуй позже."
)

// Handlers wires the conversation Flow into telebot. It also satisfies
// router.FSM so the text router forwards messages to ManagerHandler while a
// free-text status is being awaited.
type Handlers struct {
	flow     *Flow
	store    ledger.Store
	exporter ledger.Exporter
}

// NewHandlers builds the telebot-facing handler set.
func NewHandlers(flow *Flow, store ledger.Store, exporter ledger.Exporter) *Handlers {
	return &Handlers{flow: flow, store: store, exporter: exporter}
}

// Register installs commands, callbacks and the text fallback.
func (h *Handlers) Register(reg *tg.Registry) {
	reg.RegisterCommand("/start", tgcommands.Command{
		Handler:     h.Start,
		Description: "Начать работу и показать справку",
	})
	reg.RegisterCommand("/export", tgcommands.Command{
		Handler:     h.Export,
		Description: "Выгрузить базу постов в Excel",
	})
	reg.RegisterCommand("/stats", tgcommands.Command{
		Handler:     h.Stats,
		Description: "Статистика постов",
	})
	reg.RegisterCommand("/version", tgcommands.Command{
		Handler:     h.Version,
		Description: "Информация о сборке",
		AdminOnly:   true,
		Hidden:      true,
	})

	_ = reg.RegisterCallback(cbPostStatus, h.StatusChosen)
	_ = reg.RegisterCallback(cbStatusCustom, h.CustomStatusRequested)
	_ = reg.RegisterCallback(cbDeletePost, h.DeletePending)
	_ = reg.RegisterCallback(cbNewLink, h.NewLink)
	_ = reg.RegisterCallback(cbExportDB, h.Export)

	reg.SetTextFallback(h.Message)
}

// InProgress implements router.FSM.
func (h *Handlers) InProgress(userID int64) bool {
	return h.flow.Sessions().AwaitingText(userID)
}

// ManagerHandler implements router.FSM: the message is a free-text status
// for the pending link.
func (h *Handlers) ManagerHandler(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	status := strings.TrimSpace(messageText(c))
	if status == "" {
		return askCustomStatus(c)
	}
	commit, err := h.flow.CommitStatus(ctx, c.Sender().ID, status)
	if err != nil {
		return h.commitFailed(c, ctx, err)
	}
	return h.committed(c, ctx, commit)
}

func askCustomStatus(c tele.Context) error {
	return tghelpers.SendText(c, msgAskCustom,
		&tele.SendOptions{ReplyMarkup: keyboard.ForceReply()})
}

// Start ensures the ledger exists and shows help.
func (h *Handlers) Start(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if err := h.store.EnsureExists(ctx, c.Sender().ID); err != nil {
		return h.storeFailed(c, ctx, err)
	}
	name := ""
	if c.Sender() != nil {
		name = c.Sender().FirstName
	}
	return tghelpers.SendText(c, fmt.Sprintf(
		"👋 Привет, %s! Я бот для сохранения постов.\n\n"+
			"Просто перешли мне пост из Telegram или отправь ссылку.\n\n"+
			"Команды:\n"+
			"/export - выгрузить твою базу данных в Excel\n"+
			"/stats - статистика твоих постов", name))
}

// Export sends the current table as a document. Registered both as /export
// and as the export_db callback.
func (h *Handlers) Export(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	return h.sendTable(c, ctx, msgEmptyLedger)
}

// Stats reports the record count and the status histogram.
func (h *Handlers) Stats(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID

	total, err := h.store.Count(ctx, userID)
	if err != nil {
		return h.storeFailed(c, ctx, err)
	}
	hist, err := h.store.StatusHistogram(ctx, userID)
	if err != nil {
		return h.storeFailed(c, ctx, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 Статистика твоих постов:\n\nВсего постов: %d\n", total)
	if len(hist) > 0 {
		b.WriteString("\nПо статусам:\n")
		statuses := make([]string, 0, len(hist))
		for s := range hist {
			statuses = append(statuses, s)
		}
		sort.Strings(statuses)
		for _, s := range statuses {
			fmt.Fprintf(&b, "• %s: %d\n", s, hist[s])
		}
	}
	return tghelpers.SendText(c, b.String())
}

// Version reports build metadata. Admin-only.
func (h *Handlers) Version(c tele.Context) error {
	text := fmt.Sprintf("postledger %s (%s)", buildinfo.Version, buildinfo.Commit)
	if buildinfo.Date != "" {
		text += " built " + buildinfo.Date
	}
	return tghelpers.SendText(c, text)
}

// Message handles any non-command text: a forwarded channel post is turned
// into its public link, otherwise the first link is extracted from the text.
func (h *Handlers) Message(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID

	if link, ok := forwardedPostLink(c.Message()); ok {
		prompt, err := h.flow.HandleLink(ctx, userID, link)
		if err != nil {
			return h.storeFailed(c, ctx, err)
		}
		return h.sendPrompt(c, prompt)
	}

	prompt, err := h.flow.HandleText(ctx, userID, messageText(c))
	if errors.Is(err, ledger.ErrNoLink) {
		return tghelpers.SendText(c, msgNoLink)
	}
	if err != nil {
		return h.storeFailed(c, ctx, err)
	}
	return h.sendPrompt(c, prompt)
}

// StatusChosen commits the pending link with one of the fixed statuses.
// The callback payload is the 1-based index into ledger.ArrivalStatuses.
func (h *Handlers) StatusChosen(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID

	idx, err := callbacks.PayloadInt(c)
	if err != nil || idx < 1 || idx > len(ledger.ArrivalStatuses) {
		h.flow.Cancel(userID)
		return tghelpers.EditOrSend(c, msgUnknown)
	}
	status := ledger.ArrivalStatuses[idx-1]

	commit, err := h.flow.CommitStatus(ctx, userID, status)
	if err != nil {
		return h.commitFailed(c, ctx, err)
	}
	return h.committed(c, ctx, commit)
}

// CustomStatusRequested switches the session to free-text status entry.
func (h *Handlers) CustomStatusRequested(c tele.Context) error {
	if err := h.flow.RequestCustomStatus(c.Sender().ID); err != nil {
		_ = tghelpers.EditOrSend(c, msgStalePending)
		return err
	}
	return askCustomStatus(c)
}

// DeletePending removes the record of the pending link.
func (h *Handlers) DeletePending(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID

	link, deleted, err := h.flow.DeletePending(ctx, userID)
	if errors.Is(err, ledger.ErrStalePending) {
		_ = tghelpers.EditOrSend(c, msgStalePending)
		return err
	}
	if err != nil {
		return h.storeFailed(c, ctx, err)
	}
	if !deleted {
		_ = tghelpers.EditOrSend(c, msgDeleteFailed)
		return ledger.ErrNotFound
	}

	logger.Info(ctx, "ledger", "record.deleted.user",
		slog.Int64("user_id", userID),
		slog.String("link", link),
	)
	return h.sendTable(c, ctx, msgEmptyLedger)
}

// NewLink discards the pending link and invites the next one.
func (h *Handlers) NewLink(c tele.Context) error {
	h.flow.Cancel(c.Sender().ID)
	return tghelpers.EditOrSend(c, msgNewLinkReady)
}

func (h *Handlers) sendPrompt(c tele.Context, p Prompt) error {
	if p.Duplicate {
		btns := make([]keyboard.InlineBtn, 0, 2)
		if p.OfferDelete {
			btns = append(btns, keyboard.InlineBtn{Text: "Удалить", Unique: cbDeletePost})
		}
		btns = append(btns, keyboard.InlineBtn{Text: "Отправить новую ссылку", Unique: cbNewLink})
		return tghelpers.SendText(c,
			fmt.Sprintf("⚠️ Ссылка уже есть в базе данных!\n\nСсылка: %s\n\nВыбери действие:", p.Link),
			&tele.SendOptions{ReplyMarkup: keyboard.InlineButtons(btns)})
	}

	btns := make([]keyboard.InlineBtn, 0, len(ledger.ArrivalStatuses)+1)
	for i, status := range ledger.ArrivalStatuses {
		btns = append(btns, keyboard.InlineBtn{
			Text:   status,
			Unique: cbPostStatus,
			Data:   strconv.Itoa(i + 1),
		})
	}
	btns = append(btns, keyboard.InlineBtn{Text: "Свой статус", Unique: cbStatusCustom})
	return tghelpers.SendText(c,
		fmt.Sprintf("📌 Пост получен!\n\nСсылка: %s\n\nКогда он вышел?", p.Link),
		&tele.SendOptions{ReplyMarkup: keyboard.InlineButtons(btns)})
}

func (h *Handlers) committed(c tele.Context, ctx context.Context, commit Commit) error {
	if err := h.sendTable(c, ctx, msgEmptyLedger); err != nil {
		return err
	}
	markup := keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: "Отправить новую ссылку", Unique: cbNewLink},
		{Text: "Удалить этот пост", Unique: cbDeletePost},
	})
	return tghelpers.SendText(c,
		fmt.Sprintf("✅ Пост #%d добавлен в твою базу данных!\n\nСсылка: %s\nСтатус: %s",
			commit.Number, commit.Link, commit.Status),
		&tele.SendOptions{ReplyMarkup: markup})
}

func (h *Handlers) commitFailed(c tele.Context, ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ledger.ErrStalePending):
		_ = tghelpers.EditOrSend(c, msgStalePending)
		return err
	case errors.Is(err, ledger.ErrDuplicateLink):
		// Session was restored in duplicate mode; re-offer the choice.
		_ = h.sendPrompt(c, Prompt{
			Link:        h.flow.Sessions().Get(c.Sender().ID).PendingLink,
			Duplicate:   true,
			OfferDelete: h.flow.OfferDelete(),
		})
		return err
	default:
		logger.Error(ctx, "ledger", "record.add_failed",
			slog.String("err", err.Error()),
		)
		_ = tghelpers.EditOrSend(c, msgAddFailed)
		return err
	}
}

func (h *Handlers) storeFailed(c tele.Context, ctx context.Context, err error) error {
	logger.Error(ctx, "ledger", "store.failed",
		slog.String("err", err.Error()),
	)
	_ = tghelpers.SendText(c, msgRetryLater)
	return err
}

// sendTable streams the current xlsx to the user, or sends empty when the
// ledger has no file yet.
func (h *Handlers) sendTable(c tele.Context, ctx context.Context, empty string) error {
	r, ok, err := h.exporter.Export(ctx, c.Sender().ID)
	if err != nil {
		return h.storeFailed(c, ctx, err)
	}
	if !ok {
		return tghelpers.SendText(c, empty)
	}
	data, err := io.ReadAll(r)
	_ = r.Close()
	if err != nil {
		return h.storeFailed(c, ctx, err)
	}
	return tghelpers.SendDocument(c, exportFilename(time.Now()), data)
}

func exportFilename(ts time.Time) string {
	return fmt.Sprintf("my_posts_%s.xlsx", ts.Format("20060102_150405"))
}

func messageText(c tele.Context) string {
	m := c.Message()
	if m == nil {
		return ""
	}
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

// forwardedPostLink rebuilds the public link of a post forwarded from a
// channel with a username.
func forwardedPostLink(m *tele.Message) (string, bool) {
	if m == nil || m.Origin == nil {
		return "", false
	}
	chat := m.Origin.Chat
	if chat == nil || chat.Username == "" || m.Origin.MessageID == 0 {
		return "", false
	}
	return fmt.Sprintf("https://t.me/%s/%d", chat.Username, m.Origin.MessageID), true
}
