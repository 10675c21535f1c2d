// Package lwm implements the client side of the LWM quality-measurement device protocol.
//
// The device is reached over TCP. Every telegram starts with a 12 byte header of three int32
// values (telegram id, status, payload length) followed by the payload. Multi-byte values use
// the byte order configured with WithByteOrder; little-endian by default.
//
// The Client keeps the connection alive: it reconnects after read errors and missed watchdog
// acknowledges, serializes outbound requests on a dedicated sender goroutine and posts every
// decoded inbound telegram to an event queue drained by the owner:
//
//	cfg, _ := lwm.NewConfig("192.168.10.20", 3800, lwm.WithWatchdogInterval(500*time.Millisecond))
//	client, _ := lwm.NewClient(ctx, cfg)
//	_ = client.Open(false)
//	defer client.Close()
//
//	// on the cyclic task
//	client.DrainEvents(func(ev lwm.Event) { ... })
//
// At most one program selection can be outstanding; a second RequestSelection before the
// acknowledge returns ErrSelectionPending.
package lwm
