package smp

import "testing"

func TestOOBSealOpenRoundTrip(t *testing.T) {
	alice, err := GenerateOOBKeyPair()
	if err != nil {
		t.Fatalf("alice keygen: %v", err)
	}
	bob, err := GenerateOOBKeyPair()
	if err != nil {
		t.Fatalf("bob keygen: %v", err)
	}

	confirm := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	sealed, err := alice.Seal(confirm, bob.PublicKey())
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	got, err := bob.OpenSealed(sealed, alice.PublicKey())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got != confirm {
		t.Fatalf("got %v want %v", got, confirm)
	}
}

func TestOOBOpenFailsForWrongSender(t *testing.T) {
	alice, _ := GenerateOOBKeyPair()
	bob, _ := GenerateOOBKeyPair()
	mallory, _ := GenerateOOBKeyPair()

	sealed, err := alice.Seal([16]byte{9}, bob.PublicKey())
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := bob.OpenSealed(sealed, mallory.PublicKey()); err == nil {
		t.Fatal("expected open to fail against the wrong sender key")
	}
}
