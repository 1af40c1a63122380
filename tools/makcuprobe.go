// Command makcuprobe is a manual bring-up utility: it opens a port at the
// initial rate, optionally performs the high-speed switch, and forwards raw
// km.* commands typed on stdin while printing every byte that comes back.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"makcu/serial"
)

func main() {
	device := flag.String("device", "", "Serial device (auto-detected if empty)")
	baud := flag.Int("baud", 115200, "Initial baud rate")
	highSpeed := flag.Bool("high-speed", false, "Switch to 4M baud before the session")
	flag.Parse()

	target := *device
	if target == "" {
		target = serial.FindFirstDevice()
		if target == "" {
			log.Fatal("No MAKCU device found; pass -device explicitly")
		}
	}

	ch := serial.NewChannel(target)
	if err := ch.Open(*baud); err != nil {
		log.Fatalf("Failed to open port: %v", err)
	}
	defer ch.Close()

	if *highSpeed {
		if err := ch.SwitchBaud(4000000); err != nil {
			log.Fatalf("Baud switch failed: %v", err)
		}
		fmt.Println("Switched to 4000000 baud")
	}

	fmt.Printf("Connected to %s at %d baud\n", ch.Name(), ch.BaudRate())
	fmt.Println("Type km.* commands, Ctrl+D to quit")

	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := ch.Read(buf)
			if err != nil {
				return
			}
			for _, b := range buf[:n] {
				if b < 0x20 && b != '\r' && b != '\n' {
					fmt.Printf("<button byte 0x%02X>\n", b)
				} else {
					fmt.Printf("%c", b)
				}
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		if cmd == "" {
			continue
		}
		if err := ch.Write([]byte(cmd + "\r\n")); err != nil {
			log.Printf("Write error: %v", err)
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}
