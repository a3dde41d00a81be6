package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"identity-forge/internal/album"
	"identity-forge/internal/batch"
	"identity-forge/internal/catalog"
	"identity-forge/internal/portrait"
	"identity-forge/internal/session"
	"identity-forge/internal/telegram"
)

const (
	callbackPrefix   = "if:"
	callbackGenerate = callbackPrefix + "gen:"
	callbackReset    = callbackPrefix + "reset"

	retryMessage = "❌ Failed to generate any images. Please try again."
)

// Messenger is the subset of the Telegram client the handler talks through.
type Messenger interface {
	SendText(chatID int64, text string) error
	SendTextWithKeyboard(chatID int64, text string, rows [][]telegram.Button) error
	SendPhoto(chatID int64, img portrait.Image, caption string) error
	SendDocument(chatID int64, img portrait.Image, filename, caption string) error
	SendUploading(chatID int64)
	AnswerCallback(callbackID, text string)
	DownloadFile(ctx context.Context, fileID string) (portrait.Image, error)
}

type BatchGenerator interface {
	GenerateBatch(ctx context.Context, input portrait.Image, category catalog.Category) (portrait.Results, error)
}

type Options struct {
	Messenger Messenger
	Batch     BatchGenerator
	Sessions  *session.Store
	Logger    *slog.Logger
}

type Handler struct {
	tg       Messenger
	batch    BatchGenerator
	sessions *session.Store
	logger   *slog.Logger
	albums   *album.Collector
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		tg:       opts.Messenger,
		batch:    opts.Batch,
		sessions: opts.Sessions,
		logger:   logger,
	}
}

// SetAlbumCollector routes album photos through c so an album sets the
// portrait once.
func (h *Handler) SetAlbumCollector(c *album.Collector) {
	h.albums = c
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if cq := update.CallbackQuery; cq != nil {
		return h.handleCallback(ctx, cq)
	}
	if update.Message == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		return h.handleCommand(ctx, chatID, msg)
	}
	if len(msg.Photo) > 0 {
		return h.handlePhoto(ctx, chatID, msg)
	}
	if strings.TrimSpace(msg.Text) != "" {
		return h.tg.SendText(chatID, "Send me a portrait photo, or use /help.")
	}
	return nil
}

func (h *Handler) handleCommand(ctx context.Context, chatID int64, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return h.tg.SendText(chatID,
			"🪪 IdentityForge\n\n"+
				"Send me a clear portrait photo and I will render you in professional roles "+
				"while keeping your face unchanged.\n\n"+helpText,
		)
	case "help":
		return h.tg.SendText(chatID, helpText)
	case "styles":
		return h.tg.SendText(chatID, stylesText())
	case "generate":
		return h.generate(ctx, chatID, catalog.ParseCategory(msg.CommandArguments()))
	case "result":
		return h.sendResult(chatID, strings.TrimSpace(msg.CommandArguments()))
	case "reset":
		h.sessions.Reset(sessionID(chatID))
		return h.tg.SendText(chatID, "✅ Session cleared. Send a new portrait to start again.")
	default:
		return h.tg.SendText(chatID, "❌ Unknown command. Use /help.")
	}
}

const helpText = "Commands:\n" +
	"/styles - List available roles\n" +
	"/generate [category] - Generate every role of a category (default WORK)\n" +
	"/result <styleId> - Download a result as a file\n" +
	"/reset - Clear your portrait and results\n\n" +
	"Send a photo to set your portrait."

func (h *Handler) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) error {
	if cq.Message == nil || cq.Message.Chat == nil {
		h.tg.AnswerCallback(cq.ID, "")
		return nil
	}
	chatID := cq.Message.Chat.ID

	action, arg := parseCallback(cq.Data)
	switch action {
	case "gen":
		h.tg.AnswerCallback(cq.ID, "Generating...")
		return h.generate(ctx, chatID, catalog.ParseCategory(arg))
	case "reset":
		h.tg.AnswerCallback(cq.ID, "Cleared")
		h.sessions.Reset(sessionID(chatID))
		return h.tg.SendText(chatID, "✅ Session cleared. Send a new portrait to start again.")
	default:
		h.tg.AnswerCallback(cq.ID, "")
		return nil
	}
}

func (h *Handler) handlePhoto(ctx context.Context, chatID int64, msg *tgbotapi.Message) error {
	fileID := msg.Photo[len(msg.Photo)-1].FileID

	if msg.MediaGroupID != "" && h.albums != nil {
		h.albums.Add(album.Photo{ChatID: chatID, MessageID: msg.MessageID, GroupID: msg.MediaGroupID, FileID: fileID})
		return nil
	}

	return h.storePortrait(ctx, chatID, fileID, "")
}

// HandleAlbum keeps the first photo of an album as the portrait.
func (h *Handler) HandleAlbum(ctx context.Context, a album.Album) {
	if len(a.FileIDs) == 0 {
		return
	}
	note := ""
	if len(a.FileIDs) > 1 {
		note = fmt.Sprintf("\nYou sent %d photos; the first one is used.", len(a.FileIDs))
	}
	if err := h.storePortrait(ctx, a.ChatID, a.FileIDs[0], note); err != nil {
		h.logger.Error("album processing failed", "chat_id", a.ChatID, "err", err)
	}
}

func (h *Handler) storePortrait(ctx context.Context, chatID int64, fileID, note string) error {
	img, err := h.tg.DownloadFile(ctx, fileID)
	if err != nil {
		h.logger.Error("photo download failed", "chat_id", chatID, "err", err)
		return h.tg.SendText(chatID, "❌ Could not download the photo. Please send it again.")
	}

	h.sessions.SetImage(sessionID(chatID), img)
	return h.tg.SendTextWithKeyboard(chatID, "✅ Portrait saved."+note+"\nChoose what to generate:", generateKeyboard())
}

func (h *Handler) generate(ctx context.Context, chatID int64, category catalog.Category) error {
	id := sessionID(chatID)

	if !h.sessions.Begin(id) {
		return h.tg.SendText(chatID, "⏳ A generation is already running. Please wait for it to finish.")
	}
	defer h.sessions.End(id)

	sess, _ := h.sessions.Get(id)
	if sess.Image == nil || sess.Image.Empty() {
		return h.tg.SendText(chatID, "📷 Send me a portrait photo first.")
	}

	targets := catalog.StyleIDs(category)
	if len(targets) > 0 {
		h.tg.SendUploading(chatID)
		_ = h.tg.SendText(chatID, fmt.Sprintf("🎨 Generating %d portraits for %s, this can take a minute...", len(targets), category.Label()))
	}

	results, err := h.batch.GenerateBatch(ctx, *sess.Image, category)
	switch {
	case errors.Is(err, batch.ErrNoTargets):
		return h.tg.SendText(chatID, fmt.Sprintf("❌ No roles defined for category %s.", category))
	case errors.Is(err, batch.ErrAllFailed):
		return h.tg.SendText(chatID, retryMessage)
	case err != nil:
		h.logger.Error("batch generation failed", "chat_id", chatID, "err", err)
		return h.tg.SendText(chatID, retryMessage)
	}

	if _, ok := h.sessions.MergeAt(id, sess.Epoch, results); !ok {
		return h.tg.SendText(chatID, "🗑 Your session was reset while generating, so these results were discarded.")
	}

	var missing []string
	for _, styleID := range targets {
		img, ok := results[styleID]
		if !ok {
			missing = append(missing, catalog.Name(styleID))
			continue
		}
		if err := h.tg.SendPhoto(chatID, img, catalog.Name(styleID)); err != nil {
			h.logger.Warn("send result failed", "chat_id", chatID, "style", styleID, "err", err)
		}
	}

	summary := fmt.Sprintf("✅ Generated %d of %d portraits.", len(results), len(targets))
	if len(missing) > 0 {
		summary += "\nCould not generate: " + strings.Join(missing, ", ") + ". Run /generate again to retry."
	}
	summary += "\nUse /result <styleId> to download a file."
	return h.tg.SendText(chatID, summary)
}

func (h *Handler) sendResult(chatID int64, styleID string) error {
	if styleID == "" {
		return h.tg.SendText(chatID, "❌ Usage: /result <styleId>\nSee /styles for ids.")
	}

	sess, _ := h.sessions.Get(sessionID(chatID))
	img, ok := sess.Results[styleID]
	if !ok || img.Empty() {
		return h.tg.SendText(chatID, fmt.Sprintf("❌ No result for %q yet.", styleID))
	}

	return h.tg.SendDocument(chatID, img, "identity-forge-"+styleID+img.Extension(), catalog.Name(styleID))
}

func sessionID(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

func parseCallback(data string) (action, arg string) {
	rest, ok := strings.CutPrefix(data, callbackPrefix)
	if !ok {
		return "", ""
	}
	action, arg, _ = strings.Cut(rest, ":")
	return action, arg
}

func generateKeyboard() [][]telegram.Button {
	var rows [][]telegram.Button
	for _, c := range catalog.Categories() {
		rows = append(rows, []telegram.Button{{Text: "Generate " + c.Label(), Data: callbackGenerate + string(c)}})
	}
	return append(rows, []telegram.Button{{Text: "Reset", Data: callbackReset}})
}

func stylesText() string {
	var b strings.Builder
	for _, c := range catalog.Categories() {
		fmt.Fprintf(&b, "%s (%s):\n", c.Label(), c)
		for _, s := range catalog.StylesIn(c) {
			fmt.Fprintf(&b, "• %s: %s, %s\n", s.ID, s.Name, s.Description)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
