// Package telegram drives the bot transport. It receives updates, maps
// commands onto matchmaking operations and relays chat content between paired
// participants without revealing who is on the other side.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"unknownchat/backend/internal/engine"
	"unknownchat/backend/internal/models"
)

// Beater is pinged from the update loop so the liveness monitor can tell a
// healthy idle bot from a wedged one.
type Beater interface {
	Beat()
}

const (
	textWelcome     = "👋 Welcome! Send /chat to find a random partner. /leave ends the conversation, /status shows where you are."
	textQueued      = "🔍 Looking for a partner... You will be connected as soon as someone else joins."
	textMatched     = "✅ Partner found! Say hi. Everything you send is relayed anonymously."
	textNoState     = "You are not chatting or waiting right now. Send /chat to get started."
	textLeftSelf    = "🚪 You left the conversation. Send /chat to find a new partner."
	textLeftQueue   = "You are no longer waiting for a partner."
	textPartnerLeft = "🚫 Your partner left the conversation. Send /chat to find a new one."
	textPartnerGone = "⚠️ Your partner could not be reached, so the conversation was closed. Send /chat to find a new one."
	textAdminEnded  = "🛑 A moderator ended this conversation."
	textUnsupported = "⚠️ That message type is not supported and was not delivered."
	textNotInChat   = "You are not in a conversation. Send /chat to find a partner."
	textMatchFell   = "⚠️ Your partner could not be reached. You are back in the queue."
)

// BotService owns the long-polling loop and is the engine's notifier.
type BotService struct {
	bot    *tgbotapi.BotAPI
	engine *engine.Engine
	log    *slog.Logger
	admins map[int64]struct{}
	beater Beater
}

func NewBotService(token string, eng *engine.Engine, adminIDs []int64, log *slog.Logger) (*BotService, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("authorizing bot: %w", err)
	}
	bot.Debug = false
	log.Info("authorized", "account", bot.Self.UserName)

	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &BotService{bot: bot, engine: eng, log: log, admins: admins}, nil
}

// SetBeater attaches the liveness monitor. Optional.
func (s *BotService) SetBeater(b Beater) { s.beater = b }

// Run polls for updates until the context is cancelled.
func (s *BotService) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := s.bot.GetUpdatesChan(u)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	s.beat()

	for {
		select {
		case <-ctx.Done():
			s.bot.StopReceivingUpdates()
			return ctx.Err()
		case <-ticker.C:
			s.beat()
		case update, ok := <-updates:
			if !ok {
				return errors.New("update channel closed")
			}
			if update.Message == nil {
				continue
			}
			s.beat()
			if update.Message.IsCommand() {
				s.handleCommand(update.Message)
			} else {
				s.relayMessage(update.Message)
			}
		}
	}
}

func (s *BotService) beat() {
	if s.beater != nil {
		s.beater.Beat()
	}
}

func (s *BotService) handleCommand(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	name := displayName(msg)

	switch msg.Command() {
	case "start":
		if err := s.engine.Register(chatID, name); err != nil {
			s.log.Error("register failed", "participant", chatID, "err", err)
			return
		}
		s.sendText(chatID, textWelcome)

	case "chat":
		s.handleChat(chatID, name)

	case "leave", "stop":
		s.handleLeave(chatID)

	case "status":
		s.sendText(chatID, s.statusText(chatID))

	case "ban":
		s.adminOnly(chatID, func() { s.handleBan(chatID, msg.CommandArguments()) })
	case "unban":
		s.adminOnly(chatID, func() { s.handleUnban(chatID, msg.CommandArguments()) })
	case "end":
		s.adminOnly(chatID, func() { s.handleForceEnd(chatID, msg.CommandArguments()) })
	case "broadcast":
		s.adminOnly(chatID, func() { s.handleBroadcast(chatID, msg.CommandArguments()) })

	default:
		s.sendText(chatID, "Unknown command. Available: /chat /leave /status")
	}
}

func (s *BotService) handleChat(chatID int64, name string) {
	result, err := s.engine.RequestPairing(chatID, name, "", "")
	if err != nil {
		var banned *engine.BannedError
		if errors.As(err, &banned) {
			s.sendText(chatID, fmt.Sprintf("⛔ You are banned until %s. Reason: %s",
				banned.Until.Format("2006-01-02 15:04 MST"), banned.Reason))
			return
		}
		var delivery *engine.DeliveryError
		if errors.As(err, &delivery) {
			// The match was rolled back and the caller re-queued.
			s.sendText(chatID, textQueued)
			return
		}
		s.log.Error("pairing request failed", "participant", chatID, "err", err)
		return
	}
	if result.Queued {
		s.sendText(chatID, textQueued)
	}
	// The matched case was already announced through OnPaired.
}

func (s *BotService) handleLeave(chatID int64) {
	result, err := s.engine.LeaveSession(chatID)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			s.sendText(chatID, textNoState)
			return
		}
		s.log.Error("leave failed", "participant", chatID, "err", err)
		return
	}
	if result.FromQueue {
		s.sendText(chatID, textLeftQueue)
		return
	}
	s.sendText(chatID, textLeftSelf)
}

func (s *BotService) statusText(chatID int64) string {
	switch {
	case s.engine.IsChatting(chatID):
		return "💬 You are in a conversation. /leave ends it."
	case s.engine.IsWaiting(chatID):
		return "🔍 You are waiting for a partner. /leave stops the search."
	default:
		if rec, ok := s.engine.IsBanned(chatID); ok {
			return fmt.Sprintf("⛔ You are banned until %s. Reason: %s",
				rec.Until.Format("2006-01-02 15:04 MST"), rec.Reason)
		}
		return textNoState
	}
}

func (s *BotService) adminOnly(chatID int64, fn func()) {
	if _, ok := s.admins[chatID]; !ok {
		s.sendText(chatID, "This command is reserved for administrators.")
		return
	}
	fn()
}

func (s *BotService) handleBan(adminID int64, args string) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		s.sendText(adminID, "Usage: /ban <id> <hours> [reason]")
		return
	}
	targetID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		s.sendText(adminID, "Invalid id: "+parts[0])
		return
	}
	hours, err := strconv.Atoi(parts[1])
	if err != nil || hours <= 0 {
		s.sendText(adminID, "Invalid duration: "+parts[1])
		return
	}
	reason := "banned by administrator"
	if len(parts) > 2 {
		reason = strings.Join(parts[2:], " ")
	}

	outcome, err := s.engine.AdminBan(targetID, hours, reason)
	if err != nil {
		s.sendText(adminID, "Ban failed: "+err.Error())
		return
	}
	report := fmt.Sprintf("Banned %d until %s.", targetID, outcome.Record.Until.Format("2006-01-02 15:04 MST"))
	if outcome.EndedPartner != nil {
		report += fmt.Sprintf(" Ended their session with %d.", *outcome.EndedPartner)
	}
	if outcome.RemovedFromQueue {
		report += " Removed from the waiting queue."
	}
	s.sendText(adminID, report)
}

func (s *BotService) handleUnban(adminID int64, args string) {
	targetID, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		s.sendText(adminID, "Usage: /unban <id>")
		return
	}
	if s.engine.AdminUnban(targetID) {
		s.sendText(adminID, fmt.Sprintf("Unbanned %d.", targetID))
	} else {
		s.sendText(adminID, fmt.Sprintf("%d has no active ban.", targetID))
	}
}

func (s *BotService) handleForceEnd(adminID int64, args string) {
	targetID, err := strconv.ParseInt(strings.TrimSpace(args), 10, 64)
	if err != nil {
		s.sendText(adminID, "Usage: /end <id>")
		return
	}
	partner, ok := s.engine.AdminForceEndSession(targetID, "ended by administrator")
	if !ok {
		s.sendText(adminID, fmt.Sprintf("%d is not in a conversation.", targetID))
		return
	}
	s.sendText(adminID, fmt.Sprintf("Ended the session between %d and %d.", targetID, partner))
}

func (s *BotService) handleBroadcast(adminID int64, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		s.sendText(adminID, "Usage: /broadcast <message>")
		return
	}
	var sent, failed int
	for _, id := range s.engine.Participants() {
		if err := s.sendText(id, "📢 "+text); err != nil {
			failed++
			continue
		}
		sent++
	}
	s.sendText(adminID, fmt.Sprintf("Broadcast delivered to %d participants, %d unreachable.", sent, failed))
}

// relayMessage forwards a non-command message to the sender's partner.
func (s *BotService) relayMessage(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	msgType, fileID, caption, ok := extractMediaInfo(msg)
	if !ok {
		s.sendText(chatID, textUnsupported)
		return
	}

	fr, err := s.engine.ForwardMessage(chatID, msgType, caption, fileID, msg.Caption)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			s.sendText(chatID, textNotInChat)
			return
		}
		s.log.Error("forward failed", "sender", chatID, "err", err)
		return
	}

	if _, err := s.bot.Send(buildOutbound(fr.ReceiverID, msgType, fileID, msg.Text, caption)); err != nil {
		if !participantGone(err) {
			s.log.Error("relay send failed", "receiver", fr.ReceiverID, "err", err)
			return
		}
		if _, torn := s.engine.DeliveryFailed(chatID); torn {
			s.sendText(chatID, textPartnerGone)
		}
	}
}

// buildOutbound assembles the partner-facing copy of a message. Media travels
// by file id, so nothing is ever re-uploaded.
func buildOutbound(chatID int64, msgType models.MessageType, fileID, text, caption string) tgbotapi.Chattable {
	switch msgType {
	case models.MessagePhoto:
		out := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(fileID))
		out.Caption = caption
		return out
	case models.MessageVideo:
		out := tgbotapi.NewVideo(chatID, tgbotapi.FileID(fileID))
		out.Caption = caption
		return out
	case models.MessageSticker:
		return tgbotapi.NewSticker(chatID, tgbotapi.FileID(fileID))
	case models.MessageVoice:
		return tgbotapi.NewVoice(chatID, tgbotapi.FileID(fileID))
	case models.MessageDocument:
		out := tgbotapi.NewDocument(chatID, tgbotapi.FileID(fileID))
		out.Caption = caption
		return out
	case models.MessageAudio:
		out := tgbotapi.NewAudio(chatID, tgbotapi.FileID(fileID))
		out.Caption = caption
		return out
	case models.MessageAnimation:
		out := tgbotapi.NewAnimation(chatID, tgbotapi.FileID(fileID))
		out.Caption = caption
		return out
	case models.MessageVideoNote:
		return tgbotapi.NewVideoNote(chatID, 0, tgbotapi.FileID(fileID))
	default:
		return tgbotapi.NewMessage(chatID, text)
	}
}

// extractMediaInfo classifies an incoming message. ok is false for types the
// relay does not carry (polls, contacts, locations).
func extractMediaInfo(msg *tgbotapi.Message) (msgType models.MessageType, fileID, caption string, ok bool) {
	caption = msg.Caption
	ok = true
	switch {
	case msg.Text != "":
		msgType = models.MessageText
		caption = msg.Text
	case msg.Photo != nil:
		msgType = models.MessagePhoto
		fileID = msg.Photo[len(msg.Photo)-1].FileID
	case msg.Video != nil:
		msgType = models.MessageVideo
		fileID = msg.Video.FileID
	case msg.Sticker != nil:
		msgType = models.MessageSticker
		fileID = msg.Sticker.FileID
	case msg.Voice != nil:
		msgType = models.MessageVoice
		fileID = msg.Voice.FileID
	case msg.Document != nil:
		msgType = models.MessageDocument
		fileID = msg.Document.FileID
	case msg.Audio != nil:
		msgType = models.MessageAudio
		fileID = msg.Audio.FileID
	case msg.Animation != nil:
		msgType = models.MessageAnimation
		fileID = msg.Animation.FileID
	case msg.VideoNote != nil:
		msgType = models.MessageVideoNote
		fileID = msg.VideoNote.FileID
	default:
		ok = false
	}
	return
}

// --- engine.Notifier ---

// OnPaired announces the new conversation to both sides. If either side is
// unreachable the error propagates so the match gets rolled back; the side
// that was already notified hears that the match fell through.
func (s *BotService) OnPaired(a, b int64) error {
	if err := s.sendText(a, textMatched); err != nil {
		return fmt.Errorf("announcing match to %d: %w", a, err)
	}
	if err := s.sendText(b, textMatched); err != nil {
		s.sendText(a, textMatchFell)
		return fmt.Errorf("announcing match to %d: %w", b, err)
	}
	return nil
}

// OnSessionEnded tells the passive side why the conversation closed.
func (s *BotService) OnSessionEnded(actorID, otherID int64, reason models.EndReason) error {
	text := textPartnerLeft
	switch {
	case reason == models.EndConnectionLost, reason == models.EndPartnerUnavailable:
		text = textPartnerGone
	case strings.HasPrefix(string(reason), "admin_action"):
		text = textAdminEnded
	}
	return s.sendText(otherID, text)
}

// OnBanned tells the target about the ban. Best effort.
func (s *BotService) OnBanned(id int64, reason string, until time.Time) error {
	return s.sendText(id, fmt.Sprintf("⛔ You have been banned until %s. Reason: %s",
		until.Format("2006-01-02 15:04 MST"), reason))
}

// Alert fans an operator alert out to every administrator. Best effort: an
// unreachable admin is logged and skipped.
func (s *BotService) Alert(text string) {
	for id := range s.admins {
		if err := s.sendText(id, text); err != nil {
			s.log.Warn("admin alert undeliverable", "admin", id, "err", err)
		}
	}
}

func (s *BotService) sendText(chatID int64, text string) error {
	_, err := s.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// participantGone recognizes the send failures that mean the chat is
// permanently unreachable rather than transiently failing.
func participantGone(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "blocked by the user") ||
		strings.Contains(msg, "chat not found") ||
		strings.Contains(msg, "user is deactivated")
}

func displayName(msg *tgbotapi.Message) string {
	if msg.From == nil {
		return ""
	}
	if msg.From.UserName != "" {
		return msg.From.UserName
	}
	return strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
}
