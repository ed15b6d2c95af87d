package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"medlist/api/internal/medlist"
	"medlist/api/internal/ocr"
	"medlist/api/internal/util"
)

const replyLimit = 3900

// Bot is the slice of *tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Router struct {
	Bot        Bot
	Svc        *medlist.Service
	EngManager *ocr.Manager
	Log        *zap.Logger

	HTTP     *http.Client
	MaxBytes int64
	Timeout  time.Duration

	busy chatLocks
}

func (r *Router) log() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}

// HandleUpdate answers one update. It blocks until the reply is sent.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	cid := msg.Chat.ID

	if msg.IsCommand() {
		r.HandleCommand(cid, msg.Command(), msg.CommandArguments())
		return
	}
	if fileID, mime, ok := pickImage(msg); ok {
		r.acceptImage(ctx, cid, fileID, mime)
		return
	}
	if msg.Text != "" {
		r.send(cid, "Send a photo of a medication list and I will read it back.")
	}
}

func (r *Router) HandleCommand(cid int64, cmd, args string) {
	switch cmd {
	case "start", "help":
		r.send(cid, helpText(r.EngManager.Engines().Names()))
	case "health":
		r.send(cid, "✅ OK. Engines: "+strings.Join(r.EngManager.Engines().Names(), ", "))
	case "engine":
		r.handleEngineCommand(cid, args)
	default:
		r.send(cid, "Unknown command. Try /help")
	}
}

// handleEngineCommand switches the chat's engine.
//
//	/engine            show current
//	/engine gemini     switch
//	/engine default    back to the server default
func (r *Router) handleEngineCommand(cid int64, args string) {
	name := strings.ToLower(strings.TrimSpace(args))
	engs := r.EngManager.Engines()
	switch name {
	case "":
		cur := r.EngManager.Get(cid)
		if cur == "" {
			cur = engs.Default() + " (default)"
		}
		r.send(cid, "Current engine: "+cur+"\nAvailable: "+strings.Join(engs.Names(), " | "))
		return
	case "default", "reset":
		r.EngManager.Reset(cid)
		r.send(cid, "✅ Engine: "+engs.Default()+" (default)")
		return
	}
	if err := r.EngManager.Set(cid, name); err != nil {
		r.send(cid, "Unknown engine. Available: "+strings.Join(engs.Names(), " | "))
		return
	}
	r.send(cid, "✅ Engine: "+r.EngManager.Get(cid))
}

func (r *Router) send(chatID int64, text string) {
	text = util.Truncate(text, replyLimit)
	if _, err := r.Bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		r.log().Warn("telegram send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (r *Router) requestID(chatID int64) string {
	return fmt.Sprintf("tg-%d-%d", chatID, time.Now().UnixNano())
}
