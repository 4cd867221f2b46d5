package periphery

import "github.com/komodohq/komodo/pkg/types"

// ForServer builds the client for a managed server, falling back to the
// core-wide passkey when the server config carries none.
func ForServer(server *types.Server, corePasskey string) *Client {
	passkey := server.Config.Passkey
	if passkey == "" {
		passkey = corePasskey
	}
	return NewClient(server.Config.Address, passkey)
}
