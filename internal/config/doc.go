// Package config loads and saves sharedpaint.json.
//
// The file holds the local painter's identity, the relay to join, the
// ports the peer server and discovery sockets bind, sync and autosave
// settings, and the relay server's own settings. Missing fields take the
// defaults from New.
//
//	{
//	  "nickName": "amy",
//	  "channel": "studio",
//	  "relay": {"url": "ws://relay.local:8080/ws"},
//	  "sync": {"timeout": "5s"},
//	  "snapshot": {"store": "bolt://sharedpaint.db", "autosave": "30s"}
//	}
package config
