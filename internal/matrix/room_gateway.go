package matrix

import "context"

// RoomGateway binds a Client to one room, which is the shape the bridge
// consumes the chat transport in.
type RoomGateway struct {
	client *Client
	roomID string
}

func NewRoomGateway(client *Client, roomID string) *RoomGateway {
	return &RoomGateway{client: client, roomID: roomID}
}

func (g *RoomGateway) SendMessage(ctx context.Context, plainBody, htmlBody string) (string, error) {
	return g.client.SendHTMLMessage(ctx, g.roomID, plainBody, htmlBody)
}

func (g *RoomGateway) SendThreadReply(ctx context.Context, rootMessageID, plainBody, htmlBody string) (string, error) {
	return g.client.SendThreadReply(ctx, g.roomID, rootMessageID, plainBody, htmlBody)
}

func (g *RoomGateway) AddReaction(ctx context.Context, targetMessageID, key string) (string, error) {
	return g.client.SendReaction(ctx, g.roomID, targetMessageID, key)
}

func (g *RoomGateway) RemoveMarker(ctx context.Context, markerMessageID, reason string) error {
	return g.client.RedactEvent(ctx, g.roomID, markerMessageID, reason)
}

func (g *RoomGateway) RoomID() string {
	return g.roomID
}
