package coreapi

import "context"

// Mutations mirror the core API chat-room schema. The gateway only ever
// writes: room bootstrap, message creation, room reactivation.

const createChatRoomMutation = `
mutation CreateChatRoom (
    $channelTechnicalId: String!,
    $channelTypeName: String!,
    $clientId: String!,
    $whatsappChatId: String
) {
    createChatRoom(
        input: {
            channelTechnicalId: $channelTechnicalId,
            channelTypeName: $channelTypeName,
            clientId: $clientId,
            whatsappChatId: $whatsappChatId
        }
    ) {
        chatRoomId
        channelId
        chatRoomStatus
    }
}`

const createChatRoomMessageMutation = `
mutation CreateChatRoomMessage (
    $chatRoomId: String!,
    $messageAuthorId: String!,
    $messageChannelId: String!,
    $messageType: String!,
    $messageText: String,
    $messageContentUrl: String
) {
    createChatRoomMessage(
        input: {
            chatRoomId: $chatRoomId,
            messageAuthorId: $messageAuthorId,
            messageChannelId: $messageChannelId,
            messageType: $messageType,
            messageText: $messageText,
            messageContentUrl: $messageContentUrl
        }
    ) {
        chatRoomId
        messageId
        messageCreatedDateTime
    }
}`

const activateClosedChatRoomMutation = `
mutation ActivateClosedChatRoom (
    $chatRoomId: String!,
    $clientId: String!
) {
    activateClosedChatRoom(
        input: {
            chatRoomId: $chatRoomId,
            clientId: $clientId
        }
    ) {
        chatRoomId
        chatRoomStatus
    }
}`

// ChatRoom is the core API's view of a conversation.
type ChatRoom struct {
	ChatRoomID     string `json:"chatRoomId"`
	ChannelID      string `json:"channelId"`
	ChatRoomStatus string `json:"chatRoomStatus"`
}

// ChatRoomMessage is the acknowledgement of a created message.
type ChatRoomMessage struct {
	ChatRoomID             string `json:"chatRoomId"`
	MessageID              string `json:"messageId"`
	MessageCreatedDateTime string `json:"messageCreatedDateTime"`
}

// CreateChatRoom bootstraps a conversation for a first-time sender.
func (c *Client) CreateChatRoom(ctx context.Context, channelTechnicalID, clientID, whatsappChatID string) (ChatRoom, error) {
	var data struct {
		CreateChatRoom ChatRoom `json:"createChatRoom"`
	}
	err := c.Execute(ctx, createChatRoomMutation, map[string]any{
		"channelTechnicalId": channelTechnicalID,
		"channelTypeName":    "whatsapp",
		"clientId":           clientID,
		"whatsappChatId":     whatsappChatID,
	}, &data)
	if err != nil {
		return ChatRoom{}, err
	}
	return data.CreateChatRoom, nil
}

// CreateChatRoomMessage records an inbound message in the core API.
func (c *Client) CreateChatRoomMessage(ctx context.Context, chatRoomID, authorID, channelID, messageType, text, contentURL string) (ChatRoomMessage, error) {
	var data struct {
		CreateChatRoomMessage ChatRoomMessage `json:"createChatRoomMessage"`
	}
	vars := map[string]any{
		"chatRoomId":       chatRoomID,
		"messageAuthorId":  authorID,
		"messageChannelId": channelID,
		"messageType":      messageType,
		"messageText":      text,
	}
	if contentURL != "" {
		vars["messageContentUrl"] = contentURL
	}
	if err := c.Execute(ctx, createChatRoomMessageMutation, vars, &data); err != nil {
		return ChatRoomMessage{}, err
	}
	return data.CreateChatRoomMessage, nil
}

// ActivateClosedChatRoom reopens a completed room when the client writes again.
func (c *Client) ActivateClosedChatRoom(ctx context.Context, chatRoomID, clientID string) (ChatRoom, error) {
	var data struct {
		ActivateClosedChatRoom ChatRoom `json:"activateClosedChatRoom"`
	}
	err := c.Execute(ctx, activateClosedChatRoomMutation, map[string]any{
		"chatRoomId": chatRoomID,
		"clientId":   clientID,
	}, &data)
	if err != nil {
		return ChatRoom{}, err
	}
	return data.ActivateClosedChatRoom, nil
}
