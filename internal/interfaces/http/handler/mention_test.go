package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const botJID = "8613800000000@s.whatsapp.net"

func TestMentionsBot(t *testing.T) {
	assert.True(t, mentionsBot("@8613800000000 昨天聊了什么", botJID))
	assert.True(t, mentionsBot("总结一下 @8613800000000", botJID))
	assert.False(t, mentionsBot("今天天气不错", botJID))
	assert.False(t, mentionsBot("@8613800000001 在吗", botJID))
	assert.False(t, mentionsBot("@8613800000000 在吗", ""))
}

func TestStripBotMention(t *testing.T) {
	assert.Equal(t, "昨天聊了什么", stripBotMention("@8613800000000 昨天聊了什么", botJID))
	assert.Equal(t, "总结一下", stripBotMention("总结一下 @8613800000000", botJID))
	assert.Equal(t, "没提及就原样返回", stripBotMention("没提及就原样返回", botJID))
}
