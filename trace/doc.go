// Package trace records GATT traffic of a DFU session as a CBOR event stream.
//
// Wrap decorates any gatt.Transport; every connect, resolve, write,
// subscription and notification becomes an Event tagged with a per-run
// session UUID. Events use integer CBOR keys, so a full image transfer
// stays compact:
//
//	rec, err := trace.NewFileRecorder("update.trace")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rec.Close()
//
//	transport := trace.Wrap(bleTransport, rec)
//
// ReadFile and Decode read a recording back.
package trace
