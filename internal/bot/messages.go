package bot

import "fmt"

type msgKey string

const (
	msgOnline         msgKey = "online"
	msgOffline        msgKey = "offline"
	msgHelp           msgKey = "help"
	msgOK             msgKey = "ok"
	msgCmdUnknown     msgKey = "cmd_unknown"
	msgCmdPrivate     msgKey = "cmd_private"
	msgSorryOwner     msgKey = "sorry_owner"
	msgArgFew         msgKey = "arg_few"
	msgArgExtra       msgKey = "arg_extra"
	msgOTPList        msgKey = "otp_list"
	msgOTPNew         msgKey = "otp_new"
	msgOTPRemove      msgKey = "otp_remove"
	msgOTPFlush       msgKey = "otp_flush"
	msgOTPBadType     msgKey = "otp_bad_type"
	msgOTPBadLifetime msgKey = "otp_bad_lifetime"
	msgChgList        msgKey = "chg_list"
	msgChgNew         msgKey = "chg_new"
	msgChgRemove      msgKey = "chg_remove"
	msgChgFlush       msgKey = "chg_flush"
	msgChgUnknown     msgKey = "chg_unknown"
	msgChatList       msgKey = "chat_list"
	msgChatAuth       msgKey = "chat_auth"
	msgChatAAuth      msgKey = "chat_aauth"
	msgChatDeauth     msgKey = "chat_deauth"
	msgChatLeave      msgKey = "chat_leave"
	msgChatUnauth     msgKey = "chat_unauth"
	msgChatQuiet      msgKey = "chat_quiet"
	msgChatUnknown    msgKey = "chat_unknown"
	msgOwnerList      msgKey = "owner_list"
	msgOwnerRemove    msgKey = "owner_remove"
	msgBotAuth        msgKey = "bot_auth"
	msgBotAAuth       msgKey = "bot_aauth"
)

var messages = map[msgKey]string{
	msgOnline:         "I'm online 👋",
	msgOffline:        "I'm going away for a while. Laters! 🖖",
	msgHelp:           "Available commands:\n%s",
	msgOK:             "Allright! 😎",
	msgCmdUnknown:     "What? 😳",
	msgCmdPrivate:     "This is a PM-only command 😐",
	msgSorryOwner:     "I'm sorry Dave, I'm afraid I can't do that 🤖",
	msgArgFew:         "I need more info 🤔",
	msgArgExtra:       "I didn't understand this \"%s\" 🤔",
	msgOTPList:        "Here's the list of tokens:\n```\n%s```\n",
	msgOTPNew:         "Ok! New token: %s\n\ntype %s\nexpires in %s",
	msgOTPRemove:      "Ok! Deleted %d token%s",
	msgOTPFlush:       "Done! We have 0 tokens pending",
	msgOTPBadType:     "Can't use that token here",
	msgOTPBadLifetime: "Wrong lifetime, must be between %d and %d",
	msgChgList:        "Here's the list of challenges:\n```\n%s```\n",
	msgChgNew:         "You have %s to complete the challenge ⏳",
	msgChgRemove:      "Ok! Deleted %d challenge%s",
	msgChgFlush:       "Done! We have 0 challenges pending",
	msgChgUnknown:     "Hmm maybe forgot to /start? 🧐",
	msgChatList:       "Here's the list of chats:\n```\n%s```\n",
	msgChatAuth:       "😎 Ok, authorized!",
	msgChatAAuth:      "🤓 already authorized!",
	msgChatDeauth:     "😎 Ok, deauthorized!",
	msgChatLeave:      "I'll leave in %s if I'm not requested before.",
	msgChatUnauth:     "😒 go away.",
	msgChatQuiet:      "Going quiet now 🤐",
	msgChatUnknown:    "I don't know that chat 🤔",
	msgOwnerList:      "Here's the list of bot owners:\n```\n%s```\n",
	msgOwnerRemove:    "Ok! %d owner%s gone",
	msgBotAuth:        "😎 You're the boss!",
	msgBotAAuth:       "Hi again boss 🤓",
}

func msg(key msgKey, args ...any) string {
	format, ok := messages[key]
	if !ok {
		format = string(key)
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
