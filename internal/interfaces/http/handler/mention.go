package handler

import "strings"

// botMentionToken 从机器人 JID 推出群里 @ 提及的文本形式，
// 例如 8613800000000@s.whatsapp.net 在消息里是 @8613800000000。
func botMentionToken(botJID string) string {
	user := botJID
	if i := strings.IndexByte(user, '@'); i >= 0 {
		user = user[:i]
	}
	return "@" + user
}

// mentionsBot 判断消息是否 @ 了机器人
func mentionsBot(text, botJID string) bool {
	if botJID == "" {
		return false
	}
	return strings.Contains(text, botMentionToken(botJID))
}

// stripBotMention 去掉消息中的机器人提及，留下真正的问题文本
func stripBotMention(text, botJID string) string {
	if botJID == "" {
		return text
	}
	return strings.TrimSpace(strings.ReplaceAll(text, botMentionToken(botJID), ""))
}
