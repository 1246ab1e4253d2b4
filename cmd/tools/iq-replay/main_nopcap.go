//go:build !pcap
// +build !pcap

package main

import "log"

func main() {
	log.Fatal("iq-replay requires libpcap; rebuild with: go build -tags pcap ./cmd/tools/iq-replay")
}
