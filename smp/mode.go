package smp

// Mode is the negotiated pairing association model (Bluetooth Core
// Spec Vol 3 Part H tables 2.6/2.7/2.8). The
// "Initiator"/"Responder" suffixes on the passkey-entry variants name
// which side keys in the six-digit passkey; the other side displays it.
type Mode int

const (
	ModeJustWorks Mode = iota
	ModePasskeyEntryInitiator // initiator keys in the passkey, responder displays it
	ModePasskeyEntryResponder // responder keys in the passkey, initiator displays it
	ModePasskeyEntryBoth      // neither side has a display; both key in the same value
	ModeNumericComparison
	ModeOutOfBand
)

func (m Mode) String() string {
	switch m {
	case ModeJustWorks:
		return "JustWorks"
	case ModePasskeyEntryInitiator:
		return "PasskeyEntryInitiator"
	case ModePasskeyEntryResponder:
		return "PasskeyEntryResponder"
	case ModePasskeyEntryBoth:
		return "PasskeyEntryBoth"
	case ModeNumericComparison:
		return "NumericComparison"
	case ModeOutOfBand:
		return "OutOfBand"
	default:
		return "Unknown"
	}
}

// Column/row order shared by both tables below: {DisplayOnly,
// DisplayYesNo, KeyboardOnly, NoInputNoOutput, KeyboardDisplay}.
//
// scTable[responder][initiator] and legacyTable[responder][initiator]
// transcribe the Core Spec matrix, including its per-cell
// Legacy-pairing fallback for capability pairs that are
// NumericComparison-eligible under Secure Connections (the fallback is
// not uniformly "demote to JustWorks": Core Spec Legacy pairing still
// does Passkey Entry for any pair involving KeyboardDisplay, and only
// collapses to JustWorks when both sides are DisplayYesNo).
var scTable = [5][5]Mode{
	/* resp=DisplayOnly      */ {ModeJustWorks, ModeJustWorks, ModePasskeyEntryInitiator, ModeJustWorks, ModePasskeyEntryInitiator},
	/* resp=DisplayYesNo     */ {ModeJustWorks, ModeNumericComparison, ModePasskeyEntryInitiator, ModeJustWorks, ModeNumericComparison},
	/* resp=KeyboardOnly     */ {ModePasskeyEntryResponder, ModePasskeyEntryResponder, ModePasskeyEntryBoth, ModeJustWorks, ModePasskeyEntryResponder},
	/* resp=NoInputNoOutput  */ {ModeJustWorks, ModeJustWorks, ModeJustWorks, ModeJustWorks, ModeJustWorks},
	/* resp=KeyboardDisplay  */ {ModePasskeyEntryResponder, ModeNumericComparison, ModePasskeyEntryInitiator, ModeJustWorks, ModeNumericComparison},
}

var legacyTable = [5][5]Mode{
	/* resp=DisplayOnly      */ {ModeJustWorks, ModeJustWorks, ModePasskeyEntryInitiator, ModeJustWorks, ModePasskeyEntryInitiator},
	/* resp=DisplayYesNo     */ {ModeJustWorks, ModeJustWorks, ModePasskeyEntryInitiator, ModeJustWorks, ModePasskeyEntryInitiator},
	/* resp=KeyboardOnly     */ {ModePasskeyEntryResponder, ModePasskeyEntryResponder, ModePasskeyEntryBoth, ModeJustWorks, ModePasskeyEntryResponder},
	/* resp=NoInputNoOutput  */ {ModeJustWorks, ModeJustWorks, ModeJustWorks, ModeJustWorks, ModeJustWorks},
	/* resp=KeyboardDisplay  */ {ModePasskeyEntryResponder, ModePasskeyEntryResponder, ModePasskeyEntryInitiator, ModeJustWorks, ModePasskeyEntryResponder},
}

func ioIndex(c IOCapability) int {
	switch c {
	case IODisplayOnly:
		return 0
	case IODisplayYesNo:
		return 1
	case IOKeyboardOnly:
		return 2
	case IONoInputNoOutput:
		return 3
	case IOKeyboardDisplay:
		return 4
	default:
		return 3 // treat unknown as NoInputNoOutput, the most conservative entry
	}
}

// SelectMode determines the pairing association model from both
// sides' IO capability, MITM requirement, SC support, and OOB
// presence. If either side requests MITM authentication, the
// IO-capability table is consulted; otherwise JustWorks. If either
// side advertises OOB-remote-present (SC: either side; Legacy: both
// sides), the mode is OutOfBand and supersedes the table.
func SelectMode(initIOCap, respIOCap IOCapability, initMITM, respMITM, sc bool, initOOB, respOOB OOBDataFlag) Mode {
	var oobPresent bool
	if sc {
		oobPresent = initOOB == OOBAuthDataRemotePresent || respOOB == OOBAuthDataRemotePresent
	} else {
		oobPresent = initOOB == OOBAuthDataRemotePresent && respOOB == OOBAuthDataRemotePresent
	}
	if oobPresent {
		return ModeOutOfBand
	}
	if !initMITM && !respMITM {
		return ModeJustWorks
	}
	table := legacyTable
	if sc {
		table = scTable
	}
	return table[ioIndex(respIOCap)][ioIndex(initIOCap)]
}
