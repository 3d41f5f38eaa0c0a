// +build linux

package hci

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// RawSocket is a concrete io.ReadWriteCloser backed by a Linux HCI
// User Channel raw socket (AF_BLUETOOTH/SOCK_RAW/BTPROTO_HCI with the
// usual bind-and-ioctl sequence). It is
// one possible constructor of the io.ReadWriteCloser NewHandler takes;
// the handler itself has no Linux dependency.
type RawSocket struct {
	fd  int
	rmu sync.Mutex
	wmu sync.Mutex
}

func ioR(t, nr, size uintptr) uintptr { return (2 << 30) | (t << 8) | nr | (size << 16) }
func ioW(t, nr, size uintptr) uintptr { return (1 << 30) | (t << 8) | nr | (size << 16) }

func ioctl(fd, op, arg uintptr) error {
	if _, _, ep := unix.Syscall(unix.SYS_IOCTL, fd, op, arg); ep != 0 {
		return ep
	}
	return nil
}

const (
	ioctlSize     = 4
	hciMaxDevices = 16
	typHCI        = 72 // 'H'
)

var (
	hciUpDevice      = ioW(typHCI, 201, ioctlSize) // HCIDEVUP
	hciDownDevice    = ioW(typHCI, 202, ioctlSize) // HCIDEVDOWN
	hciGetDeviceList = ioR(typHCI, 210, ioctlSize) // HCIGETDEVLIST
)

type devListRequest struct {
	devNum     uint16
	devRequest [hciMaxDevices]struct {
		id  uint16
		opt uint32
	}
}

// NewRawSocket opens a HCI User Channel for the given controller
// index, or the first controller that accepts exclusive binding if id
// is -1.
func NewRawSocket(id int) (*RawSocket, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_RAW, unix.BTPROTO_HCI)
	if err != nil {
		return nil, errors.Wrap(err, "hci: can't create raw socket")
	}

	if id != -1 {
		return bindUserChannel(fd, id)
	}

	req := devListRequest{devNum: hciMaxDevices}
	if err := ioctl(uintptr(fd), hciGetDeviceList, uintptr(unsafe.Pointer(&req))); err != nil {
		return nil, errors.Wrap(err, "hci: can't get device list")
	}
	var msg string
	for devID := 0; devID < int(req.devNum); devID++ {
		s, err := bindUserChannel(fd, devID)
		if err == nil {
			return s, nil
		}
		msg += fmt.Sprintf("(hci%d: %s)", devID, err)
	}
	return nil, errors.Errorf("hci: no devices available: %s", msg)
}

// EnumerateDeviceIndices lists the controller indices the kernel
// currently reports, without binding any of them.
func EnumerateDeviceIndices() ([]int, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_RAW, unix.BTPROTO_HCI)
	if err != nil {
		return nil, errors.Wrap(err, "hci: can't create raw socket")
	}
	defer unix.Close(fd)

	req := devListRequest{devNum: hciMaxDevices}
	if err := ioctl(uintptr(fd), hciGetDeviceList, uintptr(unsafe.Pointer(&req))); err != nil {
		return nil, errors.Wrap(err, "hci: can't get device list")
	}
	ids := make([]int, 0, req.devNum)
	for i := 0; i < int(req.devNum); i++ {
		ids = append(ids, int(req.devRequest[i].id))
	}
	return ids, nil
}

func bindUserChannel(fd, id int) (*RawSocket, error) {
	// Reset the device in case a previous session left it bound.
	if err := ioctl(uintptr(fd), hciDownDevice, uintptr(id)); err != nil {
		return nil, errors.Wrap(err, "hci: can't down device")
	}
	if err := ioctl(uintptr(fd), hciUpDevice, uintptr(id)); err != nil {
		return nil, errors.Wrap(err, "hci: can't up device")
	}
	// HCI User Channel requires exclusive access; the device must be
	// down again at bind time.
	if err := ioctl(uintptr(fd), hciDownDevice, uintptr(id)); err != nil {
		return nil, errors.Wrap(err, "hci: can't down device before bind")
	}

	sa := unix.SockaddrHCI{Dev: uint16(id), Channel: unix.HCI_CHANNEL_USER}
	if err := unix.Bind(fd, &sa); err != nil {
		return nil, errors.Wrap(err, "hci: can't bind socket to user channel")
	}
	return &RawSocket{fd: fd}, nil
}

func (s *RawSocket) Read(p []byte) (int, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()
	n, err := unix.Read(s.fd, p)
	if err != nil {
		return n, errors.Wrap(err, "hci: socket read")
	}
	return n, nil
}

func (s *RawSocket) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	n, err := unix.Write(s.fd, p)
	if err != nil {
		return n, errors.Wrap(err, "hci: socket write")
	}
	return n, nil
}

func (s *RawSocket) Close() error {
	if err := unix.Close(s.fd); err != nil {
		return errors.Wrap(err, "hci: socket close")
	}
	return nil
}
