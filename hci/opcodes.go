package hci

// Command opcodes this core issues, OGF<<10 | OCF.
const (
	OpReset                     OpCode = 0x03<<10 | 0x0003
	OpSetEventMask              OpCode = 0x03<<10 | 0x0001
	OpWriteLocalName            OpCode = 0x03<<10 | 0x0013
	OpWriteLEHostSupport        OpCode = 0x03<<10 | 0x006D
	OpReadBDADDR                OpCode = 0x04<<10 | 0x0009
	OpDisconnect                OpCode = 0x01<<10 | 0x0006

	OpLESetEventMask            OpCode = 0x08<<10 | 0x0001
	OpLESetRandomAddress        OpCode = 0x08<<10 | 0x0005
	OpLESetAdvertisingParams    OpCode = 0x08<<10 | 0x0006
	OpLESetAdvertisingData      OpCode = 0x08<<10 | 0x0008
	OpLESetScanResponseData     OpCode = 0x08<<10 | 0x0009
	OpLESetAdvertiseEnable      OpCode = 0x08<<10 | 0x000A
	OpLESetScanParameters       OpCode = 0x08<<10 | 0x000B
	OpLESetScanEnable           OpCode = 0x08<<10 | 0x000C
	OpLECreateConnection        OpCode = 0x08<<10 | 0x000D
	OpLECreateConnectionCancel  OpCode = 0x08<<10 | 0x000E
	OpLEConnectionUpdate        OpCode = 0x08<<10 | 0x0013
	OpLEStartEncryption         OpCode = 0x08<<10 | 0x0019
	OpLELongTermKeyReply        OpCode = 0x08<<10 | 0x001A
	OpLELongTermKeyNegReply     OpCode = 0x08<<10 | 0x001B
)
