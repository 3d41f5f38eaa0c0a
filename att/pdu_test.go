package att

import (
	"bytes"
	"reflect"
	"testing"

	direct "github.com/sgothel/direct-bt-go"
)

// TestReadByGroupTypeRequestWireBytes checks the exact framing of a
// Read By Group Type request: group=true, start=0x0001, end=0xFFFF,
// uuid16(0x1234) must encode to 10 01 00 ff ff 34 12.
func TestReadByGroupTypeRequestWireBytes(t *testing.T) {
	got := EncodeReadByNTypeReq(true, 0x0001, 0xFFFF, direct.UUIDFrom16(0x1234))
	want := []byte{0x10, 0x01, 0x00, 0xff, 0xff, 0x34, 0x12}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x want % x", got, want)
	}
}

func TestReadByTypeRequestRoundTrip(t *testing.T) {
	req := EncodeReadByNTypeReq(false, 1, 0xFFFF, direct.UUIDFrom16(0x2A00))
	got, err := DecodeReadByNTypeReq(req)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Group || got.Start != 1 || got.End != 0xFFFF || !got.UUID.Equal(direct.UUIDFrom16(0x2A00)) {
		t.Fatalf("got %+v", got)
	}
}

func TestReadByGroupTypeResponseRoundTrip(t *testing.T) {
	entries := []AttributeData{
		{Handle: 1, GroupEnd: 5, Value: []byte{0x00, 0x18}},
		{Handle: 6, GroupEnd: 10, Value: []byte{0x01, 0x18}},
	}
	pdu, err := EncodeReadByGroupTypeResponse(entries)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeReadByGroupTypeResponse(pdu)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || !reflect.DeepEqual(got[0], entries[0]) || !reflect.DeepEqual(got[1], entries[1]) {
		t.Fatalf("got %+v want %+v", got, entries)
	}
}

func TestFindInformationResponseRoundTrip16Bit(t *testing.T) {
	entries := []HandleUUIDPair{
		{Handle: 1, UUID: direct.UUIDFrom16(0x2A00)},
		{Handle: 2, UUID: direct.UUIDFrom16(0x2A01)},
	}
	pdu, err := EncodeFindInformationResponse(entries)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if pdu[1] != 1 {
		t.Fatalf("format = %d, want 1 (16-bit)", pdu[1])
	}
	got, err := DecodeFindInformationResponse(pdu)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || !got[0].UUID.Equal(entries[0].UUID) || !got[1].UUID.Equal(entries[1].UUID) {
		t.Fatalf("got %+v", got)
	}
}

func TestReadWriteRequestRoundTrip(t *testing.T) {
	rreq := EncodeReadRequest(0x0042)
	h, err := DecodeReadRequest(rreq)
	if err != nil || h != 0x0042 {
		t.Fatalf("read request: h=%d err=%v", h, err)
	}

	wreq := EncodeWriteRequest(0x0042, []byte{1, 2, 3})
	h, v, err := DecodeWriteRequest(wreq)
	if err != nil || h != 0x0042 || !bytes.Equal(v, []byte{1, 2, 3}) {
		t.Fatalf("write request: h=%d v=%v err=%v", h, v, err)
	}
}

func TestReadBlobConcatenationTerminatesOnShortChunk(t *testing.T) {
	// A READ_BLOB loop stops once a
	// returned chunk is shorter than mtu-1, without needing a sentinel.
	mtu := 23
	full := make([]byte, 50)
	for i := range full {
		full[i] = byte(i)
	}
	var assembled []byte
	offset := 0
	for {
		end := offset + (mtu - 1)
		if end > len(full) {
			end = len(full)
		}
		chunk := full[offset:end]
		pdu := EncodeReadBlobResponse(chunk)
		got, err := DecodeReadBlobResponse(pdu)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		assembled = append(assembled, got...)
		offset += len(got)
		if len(got) < mtu-1 {
			break
		}
	}
	if !bytes.Equal(assembled, full) {
		t.Fatalf("assembled %v want %v", assembled, full)
	}
}

func TestErrorResponseRoundTrip(t *testing.T) {
	pdu := EncodeErrorResponse(OpReadRequest, 0x0010, ErrAttributeNotFound)
	pe, err := DecodeErrorResponse(pdu)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pe.RequestOpcode != OpReadRequest || pe.Handle != 0x0010 || pe.Code != ErrAttributeNotFound {
		t.Fatalf("got %+v", pe)
	}
}

func TestDecodeRejectsTruncatedPDUs(t *testing.T) {
	if _, err := DecodeReadRequest([]byte{0x0A, 0x01}); err == nil {
		t.Fatal("expected malformed error")
	}
	if _, _, err := DecodeReadBlobRequest([]byte{0x0C}); err == nil {
		t.Fatal("expected malformed error")
	}
}
