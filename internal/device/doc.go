// Package device maintains the gateway's in-memory registry of smart
// outlets and applies on/off/query commands to them.
//
// The registry does not speak any device protocol itself. A Driver probes
// an address and describes the device found there; the returned
// Descriptor performs the actual commands.
//
// # Resolution
//
// Names are matched by substring: the key "Room Light" finds a device
// that reports itself as "Living Room Light 1". The key "lrlt1" does not.
// Discovery replaces an entry whose reported name is identical, and
// otherwise appends.
//
// # Rediscovery
//
// Apply resolves from the cache first. On a miss it runs at most the
// configured number of discovery rounds (one by default) at the address
// the caller supplied, then gives up with ErrDeviceNotFound:
//
//	state, err := reg.Apply(ctx, "Room Light", "192.168.86.25", device.OpTurnOn)
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // still missing after one discovery
//	}
package device
