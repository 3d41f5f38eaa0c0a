package hci

import direct "github.com/sgothel/direct-bt-go"

// Status is the HCI command-complete/command-status/disconnection
// status byte. The table covers the full Core Spec error-code range,
// the vendor-extension range BlueZ management-socket-derived codes
// occupy (0xc3-0xd4), and the two internal sentinel codes this core
// adds for its own command-timeout/command-failure bookkeeping.
type Status uint8

const (
	StatusSuccess                                     Status = 0x00
	StatusUnknownHCICommand                           Status = 0x01
	StatusUnknownConnectionIdentifier                 Status = 0x02
	StatusHardwareFailure                             Status = 0x03
	StatusPageTimeout                                 Status = 0x04
	StatusAuthenticationFailure                       Status = 0x05
	StatusPinOrKeyMissing                             Status = 0x06
	StatusMemoryCapacityExceeded                      Status = 0x07
	StatusConnectionTimeout                           Status = 0x08
	StatusConnectionLimitExceeded                     Status = 0x09
	StatusSyncDeviceConnectionLimitExceeded           Status = 0x0a
	StatusConnectionAlreadyExists                     Status = 0x0b
	StatusCommandDisallowed                           Status = 0x0c
	StatusConnectionRejectedLimitedResources          Status = 0x0d
	StatusConnectionRejectedSecurity                  Status = 0x0e
	StatusConnectionRejectedUnacceptableBDAddr        Status = 0x0f
	StatusConnectionAcceptTimeoutExceeded             Status = 0x10
	StatusUnsupportedFeatureOrParamValue              Status = 0x11
	StatusInvalidHCICommandParameters                 Status = 0x12
	StatusRemoteUserTerminatedConnection              Status = 0x13
	StatusRemoteDeviceTerminatedConnLowResources       Status = 0x14
	StatusRemoteDeviceTerminatedConnPowerOff           Status = 0x15
	StatusConnectionTerminatedByLocalHost             Status = 0x16
	StatusRepeatedAttempts                            Status = 0x17
	StatusPairingNotAllowed                           Status = 0x18
	StatusUnknownLMPPDU                               Status = 0x19
	StatusUnsupportedRemoteOrLMPFeature               Status = 0x1a
	StatusSCOOffsetRejected                           Status = 0x1b
	StatusSCOIntervalRejected                         Status = 0x1c
	StatusSCOAirModeRejected                          Status = 0x1d
	StatusInvalidLMPOrLLParameters                    Status = 0x1e
	StatusUnspecifiedError                            Status = 0x1f
	StatusUnsupportedLMPOrLLParameterValue            Status = 0x20
	StatusRoleChangeNotAllowed                        Status = 0x21
	StatusLMPOrLLResponseTimeout                      Status = 0x22
	StatusLMPOrLLCollision                            Status = 0x23
	StatusLMPPDUNotAllowed                            Status = 0x24
	StatusEncryptionModeNotAccepted                   Status = 0x25
	StatusLinkKeyCannotBeChanged                      Status = 0x26
	StatusRequestedQoSNotSupported                    Status = 0x27
	StatusInstantPassed                               Status = 0x28
	StatusPairingWithUnitKeyNotSupported              Status = 0x29
	StatusDifferentTransactionCollision               Status = 0x2a
	StatusQoSUnacceptableParameter                    Status = 0x2c
	StatusQoSRejected                                 Status = 0x2d
	StatusChannelAssessmentNotSupported                Status = 0x2e
	StatusInsufficientSecurity                        Status = 0x2f
	StatusParameterOutOfRange                         Status = 0x30
	StatusRoleSwitchPending                           Status = 0x32
	StatusReservedSlotViolation                       Status = 0x34
	StatusRoleSwitchFailed                            Status = 0x35
	StatusEIRTooLarge                                 Status = 0x36
	StatusSimplePairingNotSupportedByHost             Status = 0x37
	StatusHostBusyPairing                             Status = 0x38
	StatusConnectionRejectedNoSuitableChannel          Status = 0x39
	StatusControllerBusy                              Status = 0x3a
	StatusUnacceptableConnectionParam                 Status = 0x3b
	StatusAdvertisingTimeout                          Status = 0x3c
	StatusConnectionTerminatedMICFailure              Status = 0x3d
	StatusConnectionEstFailedOrSyncTimeout            Status = 0x3e
	StatusMaxConnectionFailed                         Status = 0x3f
	StatusCoarseClockAdjRejected                      Status = 0x40
	StatusType0SubmapNotDefined                       Status = 0x41
	StatusUnknownAdvertisingIdentifier                Status = 0x42
	StatusLimitReached                                Status = 0x43
	StatusOperationCancelledByHost                    Status = 0x44
	StatusPacketTooLong                               Status = 0x45

	// Vendor codes a BlueZ management client surfaces; kept so a
	// status-to-Kind mapping can
	// cover both raw HCI events and BlueZ mgmt responses uniformly.
	StatusFailed            Status = 0xc3
	StatusConnectFailed     Status = 0xc4
	StatusAuthFailed        Status = 0xc5
	StatusNotPaired         Status = 0xc6
	StatusNoResources       Status = 0xc7
	StatusMgmtTimeout       Status = 0xc8
	StatusAlreadyConnected  Status = 0xc9
	StatusMgmtBusy          Status = 0xca
	StatusRejected          Status = 0xcb
	StatusMgmtNotSupported  Status = 0xcc
	StatusInvalidParams     Status = 0xcd
	StatusMgmtDisconnected  Status = 0xce
	StatusNotPowered        Status = 0xcf
	StatusMgmtCancelled     Status = 0xd0
	StatusInvalidIndex      Status = 0xd1
	StatusRFKilled          Status = 0xd2
	StatusAlreadyPaired     Status = 0xd3
	StatusPermissionDenied  Status = 0xd4

	// Internal sentinels this core adds: a request that timed out
	// waiting for a controller reply, and a catch-all for a local
	// failure that never reached the wire.
	StatusInternalTimeout Status = 0xfd
	StatusInternalFailure Status = 0xfe
	StatusUnknown         Status = 0xff
)

var statusNames = map[Status]string{
	StatusSuccess:                              "Success",
	StatusUnknownHCICommand:                    "UnknownHCICommand",
	StatusUnknownConnectionIdentifier:          "UnknownConnectionIdentifier",
	StatusHardwareFailure:                      "HardwareFailure",
	StatusPageTimeout:                          "PageTimeout",
	StatusAuthenticationFailure:                "AuthenticationFailure",
	StatusPinOrKeyMissing:                      "PinOrKeyMissing",
	StatusMemoryCapacityExceeded:               "MemoryCapacityExceeded",
	StatusConnectionTimeout:                    "ConnectionTimeout",
	StatusConnectionLimitExceeded:              "ConnectionLimitExceeded",
	StatusSyncDeviceConnectionLimitExceeded:    "SyncDeviceConnectionLimitExceeded",
	StatusConnectionAlreadyExists:              "ConnectionAlreadyExists",
	StatusCommandDisallowed:                    "CommandDisallowed",
	StatusConnectionRejectedLimitedResources:   "ConnectionRejectedLimitedResources",
	StatusConnectionRejectedSecurity:           "ConnectionRejectedSecurity",
	StatusConnectionRejectedUnacceptableBDAddr: "ConnectionRejectedUnacceptableBDAddr",
	StatusConnectionAcceptTimeoutExceeded:      "ConnectionAcceptTimeoutExceeded",
	StatusUnsupportedFeatureOrParamValue:       "UnsupportedFeatureOrParamValue",
	StatusInvalidHCICommandParameters:          "InvalidHCICommandParameters",
	StatusRemoteUserTerminatedConnection:       "RemoteUserTerminatedConnection",
	StatusRemoteDeviceTerminatedConnLowResources: "RemoteDeviceTerminatedConnLowResources",
	StatusRemoteDeviceTerminatedConnPowerOff:     "RemoteDeviceTerminatedConnPowerOff",
	StatusConnectionTerminatedByLocalHost:      "ConnectionTerminatedByLocalHost",
	StatusRepeatedAttempts:                     "RepeatedAttempts",
	StatusPairingNotAllowed:                    "PairingNotAllowed",
	StatusUnknownLMPPDU:                        "UnknownLMPPDU",
	StatusUnsupportedRemoteOrLMPFeature:        "UnsupportedRemoteOrLMPFeature",
	StatusInvalidLMPOrLLParameters:             "InvalidLMPOrLLParameters",
	StatusUnspecifiedError:                     "UnspecifiedError",
	StatusInsufficientSecurity:                 "InsufficientSecurity",
	StatusAdvertisingTimeout:                   "AdvertisingTimeout",
	StatusConnectionTerminatedMICFailure:       "ConnectionTerminatedMICFailure",
	StatusUnacceptableConnectionParam:          "UnacceptableConnectionParam",
	StatusInternalTimeout:                      "InternalTimeout",
	StatusInternalFailure:                      "InternalFailure",
	StatusUnknown:                              "Unknown",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Reserved"
}

// Kind maps a raw HCI status byte onto this module's error taxonomy,
// used by the handler to translate a failed command
// completion/status into the *direct.Error a caller observes.
func (s Status) Kind() direct.Kind {
	switch s {
	case StatusSuccess:
		return direct.KindUnspecified
	case StatusConnectionTimeout, StatusConnectionAcceptTimeoutExceeded, StatusInternalTimeout, StatusMgmtTimeout, StatusAdvertisingTimeout:
		return direct.KindTimeout
	case StatusRemoteUserTerminatedConnection, StatusRemoteDeviceTerminatedConnLowResources,
		StatusRemoteDeviceTerminatedConnPowerOff, StatusConnectionTerminatedByLocalHost,
		StatusConnectionTerminatedMICFailure, StatusMgmtDisconnected:
		return direct.KindDisconnected
	case StatusOperationCancelledByHost, StatusMgmtCancelled:
		return direct.KindCancelled
	case StatusAuthenticationFailure, StatusPinOrKeyMissing, StatusInsufficientSecurity,
		StatusConnectionRejectedSecurity, StatusPairingNotAllowed, StatusAuthFailed, StatusPermissionDenied:
		return direct.KindUnauthorized
	case StatusCommandDisallowed, StatusControllerBusy, StatusHostBusyPairing, StatusMgmtBusy:
		return direct.KindBusy
	case StatusUnsupportedFeatureOrParamValue, StatusUnsupportedRemoteOrLMPFeature,
		StatusUnsupportedLMPOrLLParameterValue, StatusMgmtNotSupported:
		return direct.KindNotSupported
	case StatusInvalidHCICommandParameters, StatusInvalidLMPOrLLParameters, StatusInvalidParams, StatusParameterOutOfRange:
		return direct.KindMalformed
	default:
		return direct.KindProtocolError
	}
}

// Err renders s as a *direct.Error unless s is StatusSuccess, in which
// case it returns nil.
func (s Status) Err() error {
	if s == StatusSuccess {
		return nil
	}
	return direct.NewError(s.Kind(), "hci status 0x%02x (%s)", uint8(s), s.String())
}
