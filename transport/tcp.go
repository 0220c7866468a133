package transport

import "net"

// Dial opens a plaintext TCP connection to addr.
func Dial(addr string) (net.Conn, error) {
	tcpaddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}

	return net.DialTCP("tcp", nil, tcpaddr)
}

// Listen binds a plaintext TCP listener on addr.
func Listen(addr string) (net.Listener, error) {
	tcpaddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}

	return net.ListenTCP("tcp", tcpaddr)
}
