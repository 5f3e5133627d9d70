// Package relay implements the relay server painters join channels
// through.
//
// A painter connects over WebSocket (/ws) or plain TCP and sends
// VERSION_INFO followed by JOIN_TO_SERVER. The relay answers RES_JOIN with
// the channel roster, the first-user flag and the super-peer id, and tells
// the other members about the newcomer. From then on it forwards:
//
//   - broadcastable packets to every other member of the channel
//   - SYNC_REQUEST to the super-peer, or to the oldest other member when
//     the channel has none
//   - a sync package (SYNC_START through SYNC_COMPLETE) to its target only
//
// When a member leaves the others receive LEFT, and when the super-peer
// leaves a new one is elected among the members with a listening TCP
// port and announced with CHANGE_SUPERPEER.
//
// Members are pinged with TCPSYN; painters answer TCPACK.
package relay
