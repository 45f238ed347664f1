package mtproto

// Chat ids use the Bot API convention so the state document does not
// depend on the transport: users keep their id, basic groups are negated
// and channels (including supergroups) are offset below -10^12.
const channelIDOffset = 1000000000000

type peerKind int

const (
	peerUser peerKind = iota
	peerChat
	peerChannel
)

func userChatID(id int64) int64    { return id }
func basicChatID(id int64) int64   { return -id }
func channelChatID(id int64) int64 { return -channelIDOffset - id }

// splitChatID returns the peer kind and the raw MTProto id of a chat id.
func splitChatID(chatID int64) (peerKind, int64) {
	switch {
	case chatID > 0:
		return peerUser, chatID
	case chatID < -channelIDOffset:
		return peerChannel, -chatID - channelIDOffset
	default:
		return peerChat, -chatID
	}
}
