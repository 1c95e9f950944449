package channel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/stellarlinkco/todoclaw/internal/bus"
	"github.com/stellarlinkco/todoclaw/internal/config"
)

const TelegramChannelName = "telegram"

// TelegramBot interface for mocking telegram bot API
type TelegramBot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetSelf() tgbotapi.User
}

// tgBotWrapper wraps tgbotapi.BotAPI to implement TelegramBot interface
type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return w.bot.GetUpdatesChan(config)
}

func (w *tgBotWrapper) StopReceivingUpdates() {
	w.bot.StopReceivingUpdates()
}

func (w *tgBotWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return w.bot.Send(c)
}

func (w *tgBotWrapper) GetSelf() tgbotapi.User {
	return w.bot.Self
}

// BotFactory creates TelegramBot instances (allows mocking)
type BotFactory func(token, apiEndpoint string, client *http.Client) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

type TelegramChannel struct {
	BaseChannel
	token      string
	bot        TelegramBot
	botName    string
	proxy      string
	cancel     context.CancelFunc
	botFactory BotFactory
	log        *zap.Logger
}

func NewTelegramChannel(cfg config.TelegramConfig, b *bus.MessageBus, log *zap.Logger) (*TelegramChannel, error) {
	return NewTelegramChannelWithFactory(cfg, b, log, defaultBotFactory)
}

// NewTelegramChannelWithFactory creates a TelegramChannel with custom bot factory (for testing)
func NewTelegramChannelWithFactory(cfg config.TelegramConfig, b *bus.MessageBus, log *zap.Logger, factory BotFactory) (*TelegramChannel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	ch := &TelegramChannel{
		BaseChannel: NewBaseChannel(TelegramChannelName, b, cfg.AllowFrom),
		token:       cfg.Token,
		proxy:       cfg.Proxy,
		botFactory:  factory,
		log:         log.Named("telegram"),
	}
	return ch, nil
}

func (t *TelegramChannel) initBot() error {
	client := http.DefaultClient
	if t.proxy != "" {
		proxyURL, err := url.Parse(t.proxy)
		if err != nil {
			return fmt.Errorf("parse proxy url: %w", err)
		}
		client = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}
	}

	bot, err := t.botFactory(t.token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	t.bot = bot
	t.botName = bot.GetSelf().UserName
	t.log.Info("authorized", zap.String("bot", t.botName))
	return nil
}

// Connect authorizes the bot so Send works without polling for updates.
func (t *TelegramChannel) Connect() error {
	return t.initBot()
}

func (t *TelegramChannel) Start(ctx context.Context) error {
	if err := t.initBot(); err != nil {
		return err
	}

	ctx, t.cancel = context.WithCancel(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case update := <-updates:
				if update.Message == nil {
					continue
				}
				t.handleMessage(update.Message)
			case <-ctx.Done():
				return
			}
		}
	}()

	t.log.Info("polling started")
	return nil
}

func (t *TelegramChannel) handleMessage(msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}
	senderID := strconv.FormatInt(msg.From.ID, 10)

	if !t.IsAllowed(senderID) {
		t.log.Info("rejected message", zap.String("sender", senderID), zap.String("username", msg.From.UserName))
		return
	}

	content := msg.Text
	if content == "" && msg.Caption != "" {
		content = msg.Caption
	}
	content, mentioned := stripBotMention(content, t.botName)
	if content == "" {
		return
	}

	name := msg.From.UserName
	if name == "" {
		name = msg.From.FirstName
	}

	t.bus.Inbound <- bus.InboundMessage{
		Channel:    TelegramChannelName,
		SenderID:   senderID,
		SenderName: name,
		ChatID:     strconv.FormatInt(msg.Chat.ID, 10),
		Content:    content,
		Direct:     msg.Chat.IsPrivate(),
		Mentioned:  mentioned,
		Timestamp:  time.Unix(int64(msg.Date), 0),
		Metadata: map[string]any{
			"first_name": msg.From.FirstName,
			"message_id": msg.MessageID,
			"chat_type":  msg.Chat.Type,
		},
	}
}

// stripBotMention removes @botname from text and turns a leading
// "/command" or "/command@botname" into a plain command word.
func stripBotMention(text, botName string) (string, bool) {
	text = strings.TrimSpace(text)
	mentioned := false

	if strings.HasPrefix(text, "/") {
		mentioned = true
		text = strings.TrimPrefix(text, "/")
	}
	if botName != "" {
		re := regexp.MustCompile(`(?i)@` + regexp.QuoteMeta(botName) + `\b`)
		if re.MatchString(text) {
			mentioned = true
			text = re.ReplaceAllString(text, "")
		}
	}
	return strings.Join(strings.Fields(text), " "), mentioned
}

func (t *TelegramChannel) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
	t.log.Info("stopped")
	return nil
}

// SetBot sets the bot (for testing)
func (t *TelegramChannel) SetBot(bot TelegramBot) {
	t.bot = bot
}

func (t *TelegramChannel) Send(msg bus.OutboundMessage) error {
	if t.bot == nil {
		return fmt.Errorf("telegram bot not initialized")
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", msg.ChatID, err)
	}

	content := toTelegramHTML(msg.Content)

	// Telegram has a 4096 char limit per message
	const maxLen = 4000
	for len(content) > 0 {
		chunk := content
		if len(chunk) > maxLen {
			idx := strings.LastIndex(chunk[:maxLen], "\n")
			if idx > 0 {
				chunk = chunk[:idx]
			} else {
				chunk = chunk[:maxLen]
			}
		}
		content = content[len(chunk):]

		tgMsg := tgbotapi.NewMessage(chatID, chunk)
		tgMsg.ParseMode = tgbotapi.ModeHTML
		if _, err := t.bot.Send(tgMsg); err != nil {
			// Retry without HTML parse mode
			tgMsg.ParseMode = ""
			tgMsg.Text = msg.Content
			if _, err2 := t.bot.Send(tgMsg); err2 != nil {
				return fmt.Errorf("send telegram message: %w", err2)
			}
			return nil
		}
	}
	return nil
}

// toTelegramHTML converts inline code and bold markdown to Telegram HTML.
// Underscores and single asterisks are left alone since task titles use them.
func toTelegramHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")

	s = replacePairs(s, "`", "<code>", "</code>")
	s = replacePairs(s, "**", "<b>", "</b>")
	return s
}

// replacePairs wraps each closed delim...delim span in open/close tags.
// An unclosed delimiter is left as is.
func replacePairs(s, delim, open, close string) string {
	var sb strings.Builder
	for {
		start := strings.Index(s, delim)
		if start == -1 {
			break
		}
		end := strings.Index(s[start+len(delim):], delim)
		if end == -1 {
			break
		}
		end += start + len(delim)
		sb.WriteString(s[:start])
		sb.WriteString(open)
		sb.WriteString(s[start+len(delim) : end])
		sb.WriteString(close)
		s = s[end+len(delim):]
	}
	sb.WriteString(s)
	return sb.String()
}
