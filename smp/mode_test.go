package smp

import "testing"

// TestNumericComparisonVsPasskeyEntry: SC=true with initiator
// KeyboardDisplay / responder DisplayYesNo, both MITM, no OOB, selects
// NumericComparison; the same inputs with SC=false select Passkey
// Entry with the initiator doing the entry.
func TestNumericComparisonVsPasskeyEntry(t *testing.T) {
	mode := SelectMode(IOKeyboardDisplay, IODisplayYesNo, true, true, true, OOBAuthDataNotPresent, OOBAuthDataNotPresent)
	if mode != ModeNumericComparison {
		t.Fatalf("sc=true mode = %v, want NumericComparison", mode)
	}

	mode = SelectMode(IOKeyboardDisplay, IODisplayYesNo, true, true, false, OOBAuthDataNotPresent, OOBAuthDataNotPresent)
	if mode != ModePasskeyEntryInitiator {
		t.Fatalf("sc=false mode = %v, want PasskeyEntryInitiator", mode)
	}
}

func TestSelectModeNoMITMIsJustWorks(t *testing.T) {
	mode := SelectMode(IOKeyboardDisplay, IOKeyboardDisplay, false, false, true, OOBAuthDataNotPresent, OOBAuthDataNotPresent)
	if mode != ModeJustWorks {
		t.Fatalf("mode = %v, want JustWorks", mode)
	}
}

func TestSelectModeOOBSupersedesTable(t *testing.T) {
	mode := SelectMode(IONoInputNoOutput, IONoInputNoOutput, true, true, true, OOBAuthDataRemotePresent, OOBAuthDataNotPresent)
	if mode != ModeOutOfBand {
		t.Fatalf("mode = %v, want OutOfBand", mode)
	}
}

func TestSelectModeLegacyOOBRequiresBothSides(t *testing.T) {
	mode := SelectMode(IONoInputNoOutput, IONoInputNoOutput, true, true, false, OOBAuthDataRemotePresent, OOBAuthDataNotPresent)
	if mode == ModeOutOfBand {
		t.Fatal("legacy oob should require both sides present, got OutOfBand")
	}
}

func TestSelectModeBothKeyboardOnlyIsPasskeyBoth(t *testing.T) {
	mode := SelectMode(IOKeyboardOnly, IOKeyboardOnly, true, true, true, OOBAuthDataNotPresent, OOBAuthDataNotPresent)
	if mode != ModePasskeyEntryBoth {
		t.Fatalf("mode = %v, want PasskeyEntryBoth", mode)
	}
}

func TestSelectModeBothNoInputNoOutputIsJustWorks(t *testing.T) {
	mode := SelectMode(IONoInputNoOutput, IONoInputNoOutput, true, true, true, OOBAuthDataNotPresent, OOBAuthDataNotPresent)
	if mode != ModeJustWorks {
		t.Fatalf("mode = %v, want JustWorks", mode)
	}
}
