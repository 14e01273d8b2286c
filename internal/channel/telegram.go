package channel

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"toolhost/internal/domain"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
	telegramSessionPrefix  = "tg-"
)

// Telegram answers chat messages through the orchestrator, one session per chat.
type Telegram struct {
	token          string
	allowFrom      []int64 // empty = allow all
	requestTimeout time.Duration

	handler   Handler
	catalogue Catalogue
	bot       *tgbotapi.BotAPI
	logger    *slog.Logger
}

type TelegramConfig struct {
	Token          string
	AllowFrom      []string // user IDs as strings
	RequestTimeout time.Duration
	Handler        Handler
	Catalogue      Catalogue
	Logger         *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		token:          cfg.Token,
		allowFrom:      allowed,
		requestTimeout: cfg.RequestTimeout,
		handler:        cfg.Handler,
		catalogue:      cfg.Catalogue,
		logger:         cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and long-polls until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return
	}
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if !t.isAllowed(userID) {
		t.logger.Warn("unauthorized telegram user", "user_id", userID, "username", update.Message.From.UserName)
		t.sendMessage(chatID, "Unauthorized. Your user ID is not in the allow list.")
		return
	}

	text := strings.TrimSpace(update.Message.Text)
	if text == "" {
		return
	}
	if update.Message.IsCommand() {
		t.sendMessage(chatID, t.commandReply(ctx, update.Message.Command()))
		return
	}

	_, _ = t.bot.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))

	reqCtx, cancel := context.WithTimeout(ctx, t.requestTimeout)
	defer cancel()
	resp := t.handler.Handle(reqCtx, domain.Request{UserQuery: text, SessionID: sessionID(chatID)})
	t.logger.Info("telegram query handled", "chat_id", chatID, "tools", len(resp.ToolCallsExecuted))
	t.sendMessage(chatID, resp.FinalAnswer)
}

func (t *Telegram) commandReply(ctx context.Context, cmd string) string {
	switch cmd {
	case "start", "help":
		return "Send me a request and I will pick a tool to answer it.\n\nCommands:\n/tools - List available tools\n/help - Show this message"
	case "tools":
		if t.catalogue == nil {
			return "No tools loaded."
		}
		return formatCatalogue(t.catalogue.AllTools(ctx))
	default:
		return "Unknown command. Type /help for available commands."
	}
}

func (t *Telegram) isAllowed(userID int64) bool {
	return len(t.allowFrom) == 0 || slices.Contains(t.allowFrom, userID)
}

func (t *Telegram) sendMessage(chatID int64, text string) {
	for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
		t.sendChunk(chatID, chunk)
	}
}

// sendChunk sends one chunk, backing off on rate limits and transient errors.
func (t *Telegram) sendChunk(chatID int64, text string) {
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		_, err := t.bot.Send(tgbotapi.NewMessage(chatID, text))
		if err == nil {
			return
		}
		if attempt == telegramMaxSendRetries {
			t.logger.Error("telegram send failed after retries", "err", err, "attempts", attempt+1)
			return
		}
		backoff := time.Duration(attempt+1) * time.Second
		if errStr := err.Error(); strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			backoff = time.Duration(attempt+1) * 3 * time.Second
		}
		t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
		time.Sleep(backoff)
	}
}

func sessionID(chatID int64) string {
	return telegramSessionPrefix + strconv.FormatInt(chatID, 10)
}

// splitMessage cuts text into chunks of at most max bytes, preferring a
// newline in the second half of a chunk.
func splitMessage(text string, max int) []string {
	var chunks []string
	for len(text) > max {
		cutAt := strings.LastIndex(text[:max], "\n")
		if cutAt < max/2 {
			cutAt = max
			for cutAt > 0 && !utf8.RuneStart(text[cutAt]) {
				cutAt--
			}
		}
		chunks = append(chunks, text[:cutAt])
		text = strings.TrimPrefix(text[cutAt:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
