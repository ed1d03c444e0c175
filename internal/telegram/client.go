// Package telegram provides the chat consumer of the tracked series. It only
// reads: every command is answered from the Tracker's query surface, and the
// package never touches series state.
package telegram

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"oispurts/internal/logger"
	"oispurts/internal/models"
	"oispurts/internal/process"
)

// Tracker is the read-only query surface the bot consumes.
type Tracker interface {
	Latest() *models.Snapshot
	Delta(symbol string, mode models.DeltaMode) (models.InstrumentDelta, error)
	History(symbol string) []models.InstrumentRecord
	Search(query string) (models.InstrumentRecord, bool)
	Suggestions(query string, limit int) []string
	Status() process.Status
}

// Client handles Telegram commands against the tracker.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	tracker        Tracker
}

// NewClient creates a Telegram client restricted to one chat.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration, tracker Tracker) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		tracker:        tracker,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and
// answers bot commands. It returns immediately; the goroutine stops when ctx
// is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message == nil || update.Message.Chat.ID != c.chatID {
					continue
				}
				c.handleMessage(update.Message)
			}
		}
	}()
}

func (c *Client) handleMessage(msg *tgbotapi.Message) {
	var reply string
	switch {
	case msg.IsCommand():
		switch msg.Command() {
		case "start", "help":
			reply = helpText
		case "status":
			reply = formatStatus(c.tracker.Status())
		case "list":
			reply = formatList(c.tracker.Latest())
		case "query":
			reply = c.answerQuery(msg.CommandArguments())
		case "history":
			reply = c.answerHistory(msg.CommandArguments())
		default:
			reply = "Unknown command\\. Try /help\\."
		}
	default:
		// Bare text is treated as an instrument query.
		reply = c.answerQuery(msg.Text)
	}
	if err := c.sendMarkdownV2(reply); err != nil {
		logger.Error("failed to send reply: %v", err)
	}
}

func (c *Client) answerQuery(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return "Usage: /query SYMBOL"
	}
	rec, ok := c.tracker.Search(query)
	if !ok {
		if sugg := c.tracker.Suggestions(query, 5); len(sugg) > 0 {
			return fmt.Sprintf("No match for *%s*\\. Did you mean: %s\\?",
				escapeMarkdownV2(query), escapeMarkdownV2(strings.Join(sugg, ", ")))
		}
		return fmt.Sprintf("No data for *%s* today\\.", escapeMarkdownV2(query))
	}
	delta, err := c.tracker.Delta(rec.Symbol, models.DeltaBaseline)
	if err != nil {
		return fmt.Sprintf("No data for *%s* today\\.", escapeMarkdownV2(query))
	}
	return formatRecord(rec, delta)
}

func (c *Client) answerHistory(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return "Usage: /history SYMBOL"
	}
	recs := c.tracker.History(query)
	if len(recs) == 0 {
		return fmt.Sprintf("No observations of *%s* today\\.", escapeMarkdownV2(query))
	}
	return formatHistory(recs)
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

const helpText = "*OI Spurts Tracker*\n\n" +
	"Send a symbol or use:\n" +
	"/query SYMBOL \\- latest rank and change vs morning baseline\n" +
	"/history SYMBOL \\- today's observations\n" +
	"/list \\- instruments in the latest snapshot\n" +
	"/status \\- tracker health"

func formatRecord(rec models.InstrumentRecord, delta models.InstrumentDelta) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 *%s*\n", escapeMarkdownV2(rec.Symbol))
	fmt.Fprintf(&b, "Rank: %d", rec.Rank)
	if delta.NewToday {
		b.WriteString(" \\(new today\\)")
	} else if delta.RankChange != 0 {
		arrow := "⬇️"
		if delta.RankChange < 0 {
			arrow = "⬆️" // a lower rank is a climb up the sheet
		}
		fmt.Fprintf(&b, " %s %s", arrow, escapeMarkdownV2(fmt.Sprintf("%+d", delta.RankChange)))
	}
	b.WriteString("\n")

	names := make([]string, 0, len(rec.Metrics))
	for name := range rec.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		// Code spans take no MarkdownV2 escapes; metric names never
		// contain backticks or backslashes.
		line := fmt.Sprintf("%s: %.2f", name, rec.Metrics[name])
		if dv, ok := delta.Metrics[name]; ok && !delta.NewToday {
			line += fmt.Sprintf(" (%+.2f since open)", dv)
		}
		fmt.Fprintf(&b, "`%s`\n", line)
	}
	fmt.Fprintf(&b, "_as of %s_", escapeMarkdownV2(rec.CapturedAt.Format("15:04:05")))
	return b.String()
}

func formatHistory(recs []models.InstrumentRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🕘 *%s* today:\n", escapeMarkdownV2(recs[0].Symbol))
	for _, rec := range recs {
		fmt.Fprintf(&b, "`%s  rank %d`\n", rec.CapturedAt.Format("15:04"), rec.Rank)
	}
	return b.String()
}

func formatList(snap *models.Snapshot) string {
	if snap == nil || len(snap.Records) == 0 {
		return "No snapshot captured yet today\\."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 *Latest snapshot* \\(%s, %d instruments\\)\n",
		escapeMarkdownV2(snap.CapturedAt.Format("15:04")), len(snap.Records))
	limit := len(snap.Records)
	if limit > 25 {
		limit = 25
	}
	for _, rec := range snap.Records[:limit] {
		fmt.Fprintf(&b, "`%2d. %s`\n", rec.Rank, rec.Symbol)
	}
	if limit < len(snap.Records) {
		fmt.Fprintf(&b, "…and %d more", len(snap.Records)-limit)
	}
	return b.String()
}

func formatStatus(st process.Status) string {
	var b strings.Builder
	b.WriteString("🩺 *Tracker status*\n")
	fmt.Fprintf(&b, "`day:        %s`\n", st.Day)
	fmt.Fprintf(&b, "`snapshots:  %d`\n", st.SnapshotCount)
	fmt.Fprintf(&b, "`symbols:    %d`\n", st.InstrumentCount)
	fmt.Fprintf(&b, "`cycles:     %d ok / %d failed`\n", st.SuccessfulCycles, st.FailedCycles)
	fmt.Fprintf(&b, "`rows drop:  %d`\n", st.DroppedRows)
	if !st.LastUpdate.IsZero() {
		fmt.Fprintf(&b, "`updated:    %s`\n", st.LastUpdate.Format("15:04:05"))
	}
	fmt.Fprintf(&b, "`uptime:     %s`", st.Uptime.Round(time.Second))
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
