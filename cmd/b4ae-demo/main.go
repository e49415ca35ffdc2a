// Command b4ae-demo runs an in-process Alice/Bob exchange over the B4AE
// protocol: hybrid handshake, a short message, and a fragmented transfer.
// Buffers move between the two clients directly. An optional config file
// selects the profile, the log level and whether audit events go to the
// log; the demo does not apply its other settings.
//
// Usage: b4ae-demo [config.yaml]
package main

import (
	"bytes"
	"fmt"
	"log"
	"os"

	"github.com/b4ae/b4ae/pkg/audit"
	"github.com/b4ae/b4ae/pkg/client"
	"github.com/b4ae/b4ae/pkg/config"
	"github.com/b4ae/b4ae/pkg/logging"
)

func main() {
	cfg := config.Default()
	if len(os.Args) > 1 {
		loaded, err := config.Load(os.Args[1])
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		cfg = loaded
	}

	profile := client.ProfileStandard
	if cfg.Profile == "strict" {
		profile = client.ProfileStrict
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	logger := logging.NewLogger("demo", level)

	var sink audit.Sink
	if cfg.Audit.Sink == "log" {
		sink = audit.NewLogSink(logging.NewLogger("audit", level))
	}

	alice, err := client.NewClient(profile, client.Options{
		PeerID:    []byte("alice"),
		AuditSink: sink,
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("Failed to create Alice: %v", err)
	}
	defer alice.Close()

	bob, err := client.NewClient(profile, client.Options{
		PeerID:    []byte("bob"),
		AuditSink: sink,
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("Failed to create Bob: %v", err)
	}
	defer bob.Close()

	// Pin identities both ways, as an out-of-band exchange would
	if err := alice.PinPeer("bob", bob.Identity().SigPublicKey); err != nil {
		log.Fatalf("Failed to pin Bob: %v", err)
	}
	if err := bob.PinPeer("alice", alice.Identity().SigPublicKey); err != nil {
		log.Fatalf("Failed to pin Alice: %v", err)
	}

	fmt.Printf("B4AE demo (%s profile)\n", profile)

	// Three-message handshake
	initMsg, err := alice.InitiateHandshake("bob")
	if err != nil {
		log.Fatalf("Initiate failed: %v", err)
	}
	fmt.Printf("  Alice -> Bob   INIT      %5d bytes\n", len(initMsg))

	response, err := bob.RespondToHandshake("alice", initMsg)
	if err != nil {
		log.Fatalf("Respond failed: %v", err)
	}
	fmt.Printf("  Bob   -> Alice RESPONSE  %5d bytes\n", len(response))

	complete, err := alice.ProcessResponse("bob", response)
	if err != nil {
		log.Fatalf("ProcessResponse failed: %v", err)
	}
	fmt.Printf("  Alice -> Bob   COMPLETE  %5d bytes\n", len(complete))

	if err := bob.CompleteHandshake("alice", complete); err != nil {
		log.Fatalf("Complete failed: %v", err)
	}
	if err := alice.FinalizeInitiator("bob"); err != nil {
		log.Fatalf("Finalize failed: %v", err)
	}

	fmt.Printf("  Sessions established: alice->bob=%v bob->alice=%v\n",
		alice.HasSession("bob"), bob.HasSession("alice"))

	// Short message, single record
	greeting := []byte("Hello, B4AE!")
	records, err := alice.EncryptMessage("bob", greeting)
	if err != nil {
		log.Fatalf("Encrypt failed: %v", err)
	}

	received, err := bob.DecryptMessage("alice", records[0])
	if err != nil {
		log.Fatalf("Decrypt failed: %v", err)
	}
	fmt.Printf("  Message round-trip: %q (%s)\n", received, client.FormatRecordCount(records))

	// Large payload, fragmented
	large := make([]byte, 10000)
	for i := range large {
		large[i] = byte(i % 256)
	}

	records, err = alice.EncryptMessage("bob", large)
	if err != nil {
		log.Fatalf("Encrypt failed: %v", err)
	}

	var reassembled []byte
	for _, record := range records {
		payload, err := bob.DecryptMessage("alice", record)
		if err != nil {
			log.Fatalf("Decrypt failed: %v", err)
		}
		if payload != nil {
			reassembled = payload
		}
	}

	if !bytes.Equal(reassembled, large) {
		log.Fatalf("Fragmented payload mismatch: got %d bytes", len(reassembled))
	}
	fmt.Printf("  Fragmented transfer: %d bytes across %s\n", len(large), client.FormatRecordCount(records))

	info, err := alice.SessionInfo("bob")
	if err != nil {
		log.Fatalf("SessionInfo failed: %v", err)
	}
	fmt.Printf("  Alice session counters: sent=%d received=%d bytes_sent=%d\n",
		info.MessagesSent, info.MessagesReceived, info.BytesSent)
}
