package registry

import (
	"testing"

	direct "github.com/sgothel/direct-bt-go"
)

func TestProcessingSetBeginEnd(t *testing.T) {
	p := NewProcessingSet()
	addr := direct.NewAddress(direct.EUI48{0x01}, direct.AddressLEPublic)

	if !p.BeginProcessing(addr) {
		t.Fatal("expected first BeginProcessing to succeed")
	}
	if p.BeginProcessing(addr) {
		t.Fatal("expected concurrent BeginProcessing to fail while already processing")
	}
	if !p.IsProcessing(addr) {
		t.Fatal("expected IsProcessing to report true")
	}

	p.EndProcessing(addr)
	if p.IsProcessing(addr) {
		t.Fatal("expected IsProcessing to report false after EndProcessing")
	}
	if !p.BeginProcessing(addr) {
		t.Fatal("expected BeginProcessing to succeed again after EndProcessing")
	}
}

func TestProcessingSetMarkProcessed(t *testing.T) {
	p := NewProcessingSet()
	addr := direct.NewAddress(direct.EUI48{0x02}, direct.AddressLEPublic)

	if p.IsProcessed(addr) {
		t.Fatal("expected fresh address to not be processed")
	}
	p.MarkProcessed(addr)
	if !p.IsProcessed(addr) {
		t.Fatal("expected MarkProcessed to stick")
	}
	p.ForgetProcessed(addr)
	if p.IsProcessed(addr) {
		t.Fatal("expected ForgetProcessed to clear the entry")
	}
}
