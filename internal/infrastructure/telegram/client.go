// Package telegram implements the delivery channel: an HTTP Bot API client
// behind ports.Messenger plus the long-poll update loop for admin commands
// and reaction callbacks.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"newspulse/internal/config"
	"newspulse/internal/ports"
)

const defaultBaseURL = "https://api.telegram.org"

// Client talks to the Bot API with form-encoded requests.
type Client struct {
	baseURL string
	token   string
	chatID  string
	client  *http.Client
}

var _ ports.Messenger = (*Client)(nil)

// NewClient registers bot token and target chat identifier.
func NewClient(cfg config.TelegramConfig) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		token:   cfg.BotToken,
		chatID:  cfg.ChatID,
		client:  &http.Client{Timeout: 65 * time.Second},
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type sentMessage struct {
	MessageID int64 `json:"message_id"`
}

// Update is one entry from getUpdates.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

// Message is an inbound chat message.
type Message struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	Chat      Chat   `json:"chat"`
	From      *User  `json:"from"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID int64 `json:"id"`
}

// User identifies the sender of a message or callback.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// CallbackQuery is a button press on an inline keyboard.
type CallbackQuery struct {
	ID      string   `json:"id"`
	Data    string   `json:"data"`
	From    User     `json:"from"`
	Message *Message `json:"message"`
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type inlineKeyboard struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

// Send posts a message to the configured chat and returns its message id.
func (c *Client) Send(ctx context.Context, text string, opts ports.SendOptions) (int64, error) {
	if c.token == "" || c.chatID == "" {
		return 0, fmt.Errorf("telegram client misconfigured")
	}

	form := url.Values{}
	form.Set("chat_id", c.chatID)
	form.Set("text", text)
	if opts.Markdown {
		form.Set("parse_mode", "Markdown")
	}
	if opts.DisablePreview {
		form.Set("disable_web_page_preview", "true")
	}
	if len(opts.Keyboard) > 0 {
		markup, err := marshalKeyboard(opts.Keyboard)
		if err != nil {
			return 0, err
		}
		form.Set("reply_markup", markup)
	}

	raw, err := c.call(ctx, "sendMessage", form)
	if err != nil {
		return 0, err
	}

	var sent sentMessage
	if err := json.Unmarshal(raw, &sent); err != nil {
		return 0, fmt.Errorf("decode sent message: %w", err)
	}
	return sent.MessageID, nil
}

// EditReplyMarkup replaces the inline keyboard of an existing message.
func (c *Client) EditReplyMarkup(ctx context.Context, messageID int64, keyboard [][]ports.Button) error {
	markup, err := marshalKeyboard(keyboard)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("chat_id", c.chatID)
	form.Set("message_id", strconv.FormatInt(messageID, 10))
	form.Set("reply_markup", markup)

	_, err = c.call(ctx, "editMessageReplyMarkup", form)
	return err
}

// AnswerCallback acknowledges a button press so the client stops its spinner.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	form := url.Values{}
	form.Set("callback_query_id", callbackID)
	if text != "" {
		form.Set("text", text)
	}

	_, err := c.call(ctx, "answerCallbackQuery", form)
	return err
}

// GetUpdates long-polls for updates after the given offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	form := url.Values{}
	form.Set("offset", strconv.FormatInt(offset, 10))
	form.Set("timeout", strconv.Itoa(int(timeout.Seconds())))
	form.Set("allowed_updates", `["message","callback_query"]`)

	raw, err := c.call(ctx, "getUpdates", form)
	if err != nil {
		return nil, err
	}

	var updates []Update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return updates, nil
}

func (c *Client) call(ctx context.Context, method string, form url.Values) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", method, err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("telegram %s failed: %s", method, parsed.Description)
	}

	return parsed.Result, nil
}

func marshalKeyboard(keyboard [][]ports.Button) (string, error) {
	rows := make([][]inlineButton, 0, len(keyboard))
	for _, row := range keyboard {
		buttons := make([]inlineButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, inlineButton{Text: b.Text, CallbackData: b.Data})
		}
		rows = append(rows, buttons)
	}

	raw, err := json.Marshal(inlineKeyboard{InlineKeyboard: rows})
	if err != nil {
		return "", fmt.Errorf("marshal keyboard: %w", err)
	}
	return string(raw), nil
}
