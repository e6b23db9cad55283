package connection

import "context"

// Channel is an object's send/receive surface on the connection: requests go
// out addressed with the object's guid, and server events targeting the guid
// come back through it.
type Channel struct {
	conn  *Connection
	guid  string
	owner *ChannelOwner
}

func (c *Channel) Guid() string {
	return c.guid
}

// Send issues a correlated request to this channel's object and waits for the
// response. The protocol uses named return values, so a lone result arrives
// one level deep; single-key result objects are unwrapped.
func (c *Channel) Send(ctx context.Context, method string, params map[string]any) (any, error) {
	result, err := c.conn.SendRequest(ctx, c.guid, method, params)
	if err != nil {
		return nil, err
	}
	if m, ok := result.(map[string]any); ok && len(m) == 1 {
		for _, v := range m {
			return v, nil
		}
	}
	return result, nil
}

// onMessage re-emits a server event on the owning handle. Embedded guids in
// params have already been resolved by the connection.
func (c *Channel) onMessage(method string, params any) {
	c.owner.Emit(method, params)
}
