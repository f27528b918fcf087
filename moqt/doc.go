// Package moqt implements MOQ Lite, a publish/subscribe protocol for live
// media over QUIC and WebTransport.
//
// A Connection is symmetric once the handshake completes: both endpoints may
// publish broadcasts and consume the broadcasts announced by the peer.
//
// # Broadcasts, tracks and groups
//
// A broadcast is a set of named tracks published under a BroadcastPath. A
// track is a sequence of groups and a group is an ordered sequence of
// frames. Each type has a producer and any number of consumers:
//
//	broadcast := moqt.NewBroadcast(nil)
//	video, _ := broadcast.CreateTrack("video", 1)
//	group, _ := video.AppendGroup()
//	group.WriteFrame(frame)
//	group.Close()
//
// Consumers only see the latest group of a track. A slow consumer skips
// groups rather than delaying the live edge.
//
// # Connections
//
// Server accepts connections over native QUIC (ALPN NextProtoMOQ) and
// WebTransport (ALPN NextProtoH3) on one listener. Client dials https://,
// moqt:// and, for local development, http:// URLs that pin a self-signed
// certificate by its fingerprint:
//
//	conn, err := client.Dial(ctx, "https://relay.example:4443/live")
//	if err != nil {
//		return err
//	}
//	conn.Publish("live/cam1", broadcast.Consume())
//
//	announced := conn.Announced("live/")
//	ann, err := announced.Next(ctx)
//	track := conn.Consume(ann.Path).Subscribe("video", 1)
//
// Errors received from the peer are reported as *SessionError,
// *SubscribeError, *AnnounceError and *GroupError; use Cause to recover them
// from a canceled context.
package moqt
