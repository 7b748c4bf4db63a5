package bridge

import (
	"fmt"
	"log"
	"regexp"
	"strings"
	"unicode"

	"github.com/ernie/craftbridge/internal/domain"
)

// maxChatMessageLength is the chat platform's hard message size limit.
const maxChatMessageLength = 2000

const truncationMarker = "..."

// GameBroadcaster sends a line of text to every connected game player
type GameBroadcaster interface {
	Broadcast(text string) error
}

// ChatSender sends a message to a chat platform channel
type ChatSender interface {
	SendMessage(channelID, content string) error
}

// Bridge relays chat both directions between the game server and the one
// configured bridge channel.
type Bridge struct {
	game      GameBroadcaster
	chat      ChatSender
	channelID string
	appUserID string
}

// New creates a Bridge. channelID may be empty, in which case chat-bound
// relays are silently dropped.
func New(game GameBroadcaster, chat ChatSender, channelID, appUserID string) *Bridge {
	return &Bridge{
		game:      game,
		chat:      chat,
		channelID: channelID,
		appUserID: appUserID,
	}
}

// HandleMessage processes an inbound chat-platform message. Messages from
// bots (including our own account) and from any channel other than the
// bridge channel are ignored, which also prevents relay loops.
func (b *Bridge) HandleMessage(msg domain.ChatMessage) {
	if msg.IsBot || msg.AuthorID == b.appUserID {
		return
	}
	if b.channelID == "" || msg.ChannelID != b.channelID {
		return
	}
	if err := b.RelayToGame(msg.AuthorName, msg.Content); err != nil {
		log.Printf("Bridge: relaying to game: %v", err)
	}
}

// RelayToGame sanitizes untrusted chat content and broadcasts it in-game
func (b *Bridge) RelayToGame(displayName, content string) error {
	return b.game.Broadcast(fmt.Sprintf("[Chat] %s: %s", displayName, SanitizeForGame(content)))
}

// RelayToChat sends content to the bridge channel. A missing channel
// configuration makes this a no-op, not an error.
func (b *Bridge) RelayToChat(content string) error {
	if b.channelID == "" {
		return nil
	}
	return b.chat.SendMessage(b.channelID, Truncate(content))
}

// RelayGameChat forwards an in-game chat line to the bridge channel
func (b *Bridge) RelayGameChat(gameName, message string) {
	if err := b.RelayToChat(fmt.Sprintf("**%s**: %s", gameName, message)); err != nil {
		log.Printf("Bridge: relaying to chat: %v", err)
	}
}

// colorCodeRegex matches the game's private color-code escapes (a section
// sign followed by the code character).
var colorCodeRegex = regexp.MustCompile(`§.`)

// SanitizeForGame strips content that must not reach the in-game chat:
// newlines become spaces, color-code escapes and control characters are
// removed.
func SanitizeForGame(content string) string {
	content = strings.ReplaceAll(content, "\n", " ")
	content = colorCodeRegex.ReplaceAllString(content, "")
	content = strings.ReplaceAll(content, "§", "")
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, content)
}

// Truncate caps content at the platform's message size limit, marking the
// cut visibly rather than splitting silently.
func Truncate(content string) string {
	runes := []rune(content)
	if len(runes) <= maxChatMessageLength {
		return content
	}
	return string(runes[:maxChatMessageLength-len(truncationMarker)]) + truncationMarker
}
