package distributed

import "net"

// AdvertiseAddr guesses the local outbound IP address remote workers should
// dial back to, by opening (and immediately discarding) a UDP socket
// toward a public address — the standard Go trick for finding "the address
// this machine would use to reach the outside world" without parsing
// interface lists.
func AdvertiseAddr() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
