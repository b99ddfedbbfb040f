package client

import (
	"errors"
	"strings"

	"github.com/omochice/relay-chat/pkg/protocol"
)

const (
	quitCommand     = "quit"
	datagramPrefix  = "udp "
	senderDelimiter = ":"
)

// ErrInvalidCommand is returned for input that is neither quit nor "receiver: text".
var ErrInvalidCommand = errors.New("invalid command")

// Command is one parsed line of user input.
type Command struct {
	Quit      bool
	Receiver  string
	Text      string
	Transport protocol.Transport
}

// ParseCommand parses "quit", "receiver: text" or "udp receiver: text".
// The text keeps everything after the delimiter except one leading space.
// Only "udp " with the space selects the datagram transport, so receivers
// such as "udpate" stay reachable.
func ParseCommand(input string) (Command, error) {
	if input == quitCommand {
		return Command{Quit: true}, nil
	}

	receiver, text, ok := strings.Cut(input, senderDelimiter)
	if !ok {
		return Command{}, ErrInvalidCommand
	}
	text = strings.TrimPrefix(text, " ")

	tr := protocol.TransportStream
	if rest, ok := strings.CutPrefix(receiver, datagramPrefix); ok {
		receiver = rest
		tr = protocol.TransportDatagram
	}
	if receiver == "" {
		return Command{}, ErrInvalidCommand
	}

	return Command{Receiver: receiver, Text: text, Transport: tr}, nil
}

// Request converts the command to the request sent to the server. Line
// breaks are removed from the text; the broadcast receiver yields SendAll.
func (c Command) Request() protocol.Request {
	if c.Quit {
		return protocol.SignOut{}
	}

	text := strings.ReplaceAll(c.Text, "\n", "")
	if c.Receiver == protocol.BroadcastName {
		return protocol.SendAll{Text: text, Transport: c.Transport}
	}
	return protocol.Send{Receiver: c.Receiver, Text: text, Transport: c.Transport}
}
