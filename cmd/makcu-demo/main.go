package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"makcu"
	"makcu/serial"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	port := flag.String("port", "", "Serial port of the MAKCU device (auto-detected if empty)")
	listPorts := flag.Bool("list-ports", false, "List available serial ports and exit")
	listDevices := flag.Bool("list-devices", false, "List attached MAKCU devices and exit")
	monitor := flag.Bool("monitor", false, "Stay connected and print button events")
	debug := flag.Bool("debug", false, "Enable debug logging")
	logPath := flag.String("log-path", "", "Write JSON logs to this file with rotation")
	showVersion := flag.Bool("version", false, "Display version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "makcu-demo - MAKCU mouse controller demo\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample:\n")
		fmt.Fprintf(os.Stderr, "  %s -list-devices\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -port /dev/ttyACM0 -monitor\n", os.Args[0])
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("makcu-demo version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	if *listPorts {
		ports, err := serial.ListPorts()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing ports: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Available serial ports:")
		if len(ports) == 0 {
			fmt.Println("  (none found)")
		} else {
			for _, p := range ports {
				fmt.Printf("  %s\n", p)
			}
		}
		os.Exit(0)
	}

	if *listDevices {
		devices := makcu.FindDevices()
		fmt.Println("Attached MAKCU devices:")
		if len(devices) == 0 {
			fmt.Println("  (none found)")
		} else {
			for _, dev := range devices {
				fmt.Printf("  %s - %s (VID=%04X PID=%04X)\n", dev.Port, dev.Description, dev.VID, dev.PID)
			}
		}
		os.Exit(0)
	}

	logger := setupLogging(*logPath, *debug)
	slog.SetDefault(logger)

	device := makcu.NewDevice(makcu.WithLogger(logger))
	defer device.Close()

	device.SetConnectionCallback(func(connected bool) {
		if !connected {
			fmt.Println("Connection lost")
		}
	})

	if !device.Connect(*port) {
		fmt.Fprintf(os.Stderr, "Failed to connect (status: %s)\n", device.Status())
		os.Exit(1)
	}

	info := device.GetDeviceInfo()
	fmt.Printf("Connected to %s (%s)\n", info.Port, info.Description)
	fmt.Printf("Firmware version: %s\n", device.GetVersion())
	if mac := device.GetMAC(); mac != "" {
		fmt.Printf("MAC: %s\n", mac)
	}

	if !*monitor {
		// Quick smoke sequence: a small square, then a click.
		batch := device.CreateBatch()
		ok := batch.
			Move(50, 0).
			Move(0, 50).
			Move(-50, 0).
			Move(0, -50).
			Click(makcu.MouseButtonLeft).
			Execute()
		fmt.Printf("Demo sequence sent: %v\n", ok)
		device.Disconnect()
		return
	}

	device.SetMouseButtonCallback(func(button makcu.MouseButton, pressed bool) {
		state := "released"
		if pressed {
			state = "pressed"
		}
		fmt.Printf("[%s] %s %s\n", time.Now().Format("15:04:05.000"), button, state)
	})

	fmt.Println("Monitoring button events, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	device.Disconnect()
	fmt.Println("Disconnected")
}

func setupLogging(logPath string, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if logPath != "" {
		writer := &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    10,
			MaxBackups: 3,
			Compress:   true,
		}
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
