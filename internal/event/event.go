package event

import (
	"time"

	"github.com/tgifai/bridgekit/internal/message"
)

type Name string

const (
	MessageReceived     Name = "message:received"
	MessageEdited       Name = "message:edited"
	MemberJoined        Name = "member:joined"
	MemberLeft          Name = "member:left"
	ChannelTitleEdited  Name = "channel:title:edited"
	ChannelPhotoEdited  Name = "channel:photo:edited"
	ChannelPhotoDeleted Name = "channel:photo:deleted"
	ButtonClicked       Name = "button:clicked"
	InlineQueryReceived Name = "inline-query:received"
	InlineQueryChosen   Name = "inline-query:chosen"
)

var Names = []Name{
	MessageReceived,
	MessageEdited,
	MemberJoined,
	MemberLeft,
	ChannelTitleEdited,
	ChannelPhotoEdited,
	ChannelPhotoDeleted,
	ButtonClicked,
	InlineQueryReceived,
	InlineQueryChosen,
}

// Event is the canonical notification emitted by a controller. Which payload
// fields are set depends on Name:
//
//	message:*               Channel, Account, Message
//	member:*                Channel, Account
//	channel:title:edited    Channel
//	channel:photo:edited    Channel, Photo
//	channel:photo:deleted   Channel
//	button:clicked          Channel, Account, Message, ButtonPayload
//	inline-query:received   Account, Query
//	inline-query:chosen     Account, Result
type Event struct {
	Name       Name
	Controller string
	Time       time.Time

	Channel       *message.ChannelInfo
	Account       *message.AccountInfo
	Message       *message.InMessage
	Photo         *message.Attachment
	ButtonPayload string
	Query         *message.InlineQuery
	Result        *message.ChosenInlineResult
}

func NewMessageEvent(name Name, msg message.InMessage) Event {
	return Event{
		Name:    name,
		Channel: &msg.Channel,
		Account: &msg.Account,
		Message: &msg,
	}
}

func NewMemberEvent(name Name, ch message.ChannelInfo, acc message.AccountInfo) Event {
	return Event{Name: name, Channel: &ch, Account: &acc}
}

func NewChannelEvent(name Name, ch message.ChannelInfo) Event {
	return Event{Name: name, Channel: &ch}
}

func NewPhotoEvent(ch message.ChannelInfo, photo *message.Attachment) Event {
	return Event{Name: ChannelPhotoEdited, Channel: &ch, Photo: photo}
}

func NewButtonEvent(msg message.InMessage, acc message.AccountInfo, payload string) Event {
	return Event{
		Name:          ButtonClicked,
		Channel:       &msg.Channel,
		Account:       &acc,
		Message:       &msg,
		ButtonPayload: payload,
	}
}

func NewInlineQueryEvent(acc message.AccountInfo, q message.InlineQuery) Event {
	return Event{Name: InlineQueryReceived, Account: &acc, Query: &q}
}

func NewChosenResultEvent(acc message.AccountInfo, r message.ChosenInlineResult) Event {
	return Event{Name: InlineQueryChosen, Account: &acc, Result: &r}
}
