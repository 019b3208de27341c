// Package nodemcu drives the interactive Lua interpreter of a NodeMCU board
// over a serial line.
//
// The interpreter is half-duplex and line oriented: the host writes a line,
// the board echoes it, runs it and prints the "> " prompt. The package
// provides:
//
//   - Session: one open port, a reader goroutine that assembles lines and
//     watches for the prompt, and flushed writes.
//   - Validator: connect, send a probe, wait for the confirmation line or a
//     timeout, disconnect.
//   - Scanner: run a Validator on every available port concurrently.
//   - SendMultiline / SendAsFile: prompt-paced transfers of Lua source.
//
// Example:
//
//	console := nodemcu.NewLogConsole(log.Default(), "RX: ")
//	path, err := nodemcu.NewScanner(nodemcu.SerialTransport{}, console).ScanFirst(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	s := nodemcu.NewSession(nodemcu.SerialTransport{}, path, console)
//	if err := s.Connect(); err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Disconnect()
//	err = s.SendAsFile(ctx, source, "init.lua")
//
// Lines are split on '\n' only; a board that sends "\r\n" yields lines
// ending in '\r'.
package nodemcu
