package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"nodemcu-bridge.go/nodemcu"
)

type options struct {
	port        string
	file        string
	name        string
	exec        bool
	scan        bool
	dryRun      bool
	usbOnly     bool
	baud        int
	stepTimeout time.Duration
	handshake   time.Duration
	noTimestamp bool
}

func parseArgs() *options {
	var o options

	flag.StringVar(&o.port, "port", "", "Serial device (empty = scan for a NodeMCU)")
	flag.StringVar(&o.file, "file", "", "Lua source to send")
	flag.StringVar(&o.name, "name", "", "Remote filename (default: base name of -file)")
	flag.BoolVar(&o.exec, "exec", false, "Type the source into the interpreter instead of saving it")
	flag.BoolVar(&o.scan, "scan", false, "List every port with a NodeMCU and exit")
	flag.BoolVar(&o.dryRun, "dry-run", false, "Print the commands that would be sent")
	flag.BoolVar(&o.usbOnly, "usb-only", true, "Only consider USB serial adapters when scanning")
	flag.IntVar(&o.baud, "baud", nodemcu.DefaultBaudRate, "Serial bit rate")
	flag.DurationVar(&o.stepTimeout, "step-timeout", nodemcu.DefaultStepTimeout, "Max wait for the prompt after each line")
	flag.DurationVar(&o.handshake, "handshake-timeout", nodemcu.DefaultHandshakeTimeout, "Max wait for the device to confirm during a scan")
	flag.BoolVar(&o.noTimestamp, "no-timestamp", false, "Disable timestamp in log output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-port <device>] -file <source.lua> [-name <remote>] [-exec] [-dry-run]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s -scan\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if !o.scan && o.file == "" {
		flag.Usage()
		os.Exit(1)
	}
	if o.name == "" && o.file != "" {
		o.name = filepath.Base(o.file)
	}
	return &o
}

func main() {
	o := parseArgs()

	logger := log.New(os.Stdout, "", log.LstdFlags)
	if o.noTimestamp {
		logger.SetFlags(0)
	}
	console := nodemcu.NewLogConsole(logger, "RX: ")
	transport := nodemcu.SerialTransport{USBOnly: o.usbOnly}
	driverOpts := []nodemcu.Option{
		nodemcu.WithBaudRate(o.baud),
		nodemcu.WithStepTimeout(o.stepTimeout),
		nodemcu.WithHandshakeTimeout(o.handshake),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if o.scan {
		found := 0
		err := nodemcu.NewScanner(transport, console, driverOpts...).Scan(ctx, func(path string) {
			found++
			fmt.Println(path)
		})
		if err != nil {
			logger.Fatalf("Scan failed: %v", err)
		}
		logger.Printf("Scan complete: %d NodeMCU device(s)", found)
		return
	}

	data, err := os.ReadFile(o.file)
	if err != nil {
		logger.Fatalf("Failed to read %s: %v", o.file, err)
	}
	code := string(data)

	if o.dryRun {
		logger.Println("=== DRY RUN MODE ===")
		tx := nodemcu.NewWriterConsole(os.Stdout)
		for _, cmd := range commands(code, o.name, o.exec) {
			tx.WriteLine(fmt.Sprintf("\033[1mTX: %q\033[0m", cmd))
		}
		logger.Println("=== DRY RUN COMPLETED ===")
		return
	}

	if o.port == "" {
		o.port, err = nodemcu.NewScanner(transport, console, driverOpts...).ScanFirst(ctx)
		if err != nil {
			logger.Fatalf("No NodeMCU found: %v", err)
		}
	}

	session := nodemcu.NewSession(transport, o.port, console, driverOpts...)
	if err := session.Connect(); err != nil {
		logger.Fatalf("Failed to open serial port: %v", err)
	}
	logger.Printf("Connected to %s at %d baud", o.port, o.baud)

	if o.exec {
		err = session.SendMultiline(ctx, code)
	} else {
		err = session.SendAsFile(ctx, code, o.name)
	}
	if derr := session.Disconnect(); derr != nil {
		logger.Printf("Disconnect failed: %v", derr)
	}
	if err != nil {
		logger.Fatalf("Transfer failed: %v", err)
	}

	logger.Println("Transfer completed successfully")
}

// commands returns what would be written to the port, one entry per paced step.
func commands(code, name string, exec bool) []string {
	if !exec {
		return nodemcu.EncodeFile(code, name)
	}
	var cmds []string
	for _, line := range strings.Split(code, "\n") {
		cmds = append(cmds, line+"\n")
	}
	return cmds
}
