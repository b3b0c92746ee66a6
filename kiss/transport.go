package kiss

import (
	"fmt"
	"io"
	"net"
	"os"

	"go.bug.st/serial"
)

// Transport is the abstract byte-stream endpoint a Session drives,
// matching spec.md §1's "Byte Transport" collaborator: open, read,
// write, close, reconnect. It is intentionally minimal — Session treats
// it as an io.ReadWriteCloser plus a single reopen hook for the
// single-retry reconnect policy in spec.md §5/§7.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
	// Reconnect closes (if still open) and reopens the underlying
	// endpoint, reusing the same locator it was first opened with.
	Reconnect() error
}

// serialTransport opens a real TTY via go.bug.st/serial, grounded on
// sparques-hamirc's go.mod dependency (declared there, exercised here
// for the first time).
type serialTransport struct {
	device string
	baud   int
	port   serial.Port
}

// OpenSerial opens device (e.g. "/dev/ttyUSB0") at baud bits/second.
func OpenSerial(device string, baud int) (Transport, error) {
	t := &serialTransport{device: device, baud: baud}
	if err := t.Reconnect(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *serialTransport) Read(p []byte) (int, error)  { return t.port.Read(p) }
func (t *serialTransport) Write(p []byte) (int, error) { return t.port.Write(p) }

func (t *serialTransport) Close() error {
	if t.port == nil {
		return nil
	}
	return t.port.Close()
}

func (t *serialTransport) Reconnect() error {
	if t.port != nil {
		_ = t.port.Close()
	}
	port, err := serial.Open(t.device, &serial.Mode{BaudRate: t.baud})
	if err != nil {
		return fmt.Errorf("kiss: open serial %s: %w", t.device, err)
	}
	t.port = port
	return nil
}

// tcpTransport is a net.Conn-backed transport, grounded on
// sparques-hamirc/irc/server.go's ConnectTNC (dialing a direwolf-style
// TCP KISS endpoint).
type tcpTransport struct {
	addr string
	conn net.Conn
}

// DialTCP connects to a TCP KISS endpoint (e.g. direwolf's default
// 127.0.0.1:8001).
func DialTCP(addr string) (Transport, error) {
	t := &tcpTransport{addr: addr}
	if err := t.Reconnect(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *tcpTransport) Read(p []byte) (int, error)  { return t.conn.Read(p) }
func (t *tcpTransport) Write(p []byte) (int, error) { return t.conn.Write(p) }

func (t *tcpTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}

func (t *tcpTransport) Reconnect() error {
	if t.conn != nil {
		_ = t.conn.Close()
	}
	conn, err := net.Dial("tcp", t.addr)
	if err != nil {
		return fmt.Errorf("kiss: dial tcp %s: %w", t.addr, err)
	}
	t.conn = conn
	return nil
}

// fileTransport wraps a plain file path (a pty symlink, a FIFO, or a
// device node opened without serial framing), grounded on
// sparques-hamirc/irc/server.go's OpenTNC.
type fileTransport struct {
	path string
	file *os.File
}

// OpenFile opens path for read/write, for ptys and other non-serial
// byte-stream endpoints.
func OpenFile(path string) (Transport, error) {
	t := &fileTransport{path: path}
	if err := t.Reconnect(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *fileTransport) Read(p []byte) (int, error)  { return t.file.Read(p) }
func (t *fileTransport) Write(p []byte) (int, error) { return t.file.Write(p) }

func (t *fileTransport) Close() error {
	if t.file == nil {
		return nil
	}
	return t.file.Close()
}

func (t *fileTransport) Reconnect() error {
	if t.file != nil {
		_ = t.file.Close()
	}
	f, err := os.OpenFile(t.path, os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("kiss: open %s: %w", t.path, err)
	}
	t.file = f
	return nil
}
