package nodemcu

// BytesToString decodes a raw chunk received from the port. Bytes are kept
// as-is; no charset translation happens on the wire.
func BytesToString(b []byte) string { return string(b) }

// StringToBytes encodes text for the port.
func StringToBytes(s string) []byte { return []byte(s) }
