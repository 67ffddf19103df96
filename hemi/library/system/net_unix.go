// Copyright (c) 2020-2025 Zhang Jingcheng <diogin@gmail.com>.
// Copyright (c) 2022-2024 HexInfra Co., Ltd.
// All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

// Net for Unix-like systems.

//go:build linux || darwin || freebsd

package system

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// Listen returns a non-blocking TCP listening socket on host:port. An empty host means all IPv4 addresses.
func Listen(host string, port int, backlog int) (fd int, err error) {
	var (
		family   = unix.AF_INET
		sockaddr unix.Sockaddr
	)
	if host == "" {
		sockaddr = &unix.SockaddrInet4{Port: port}
	} else {
		ip := net.ParseIP(host)
		if ip == nil {
			return -1, fmt.Errorf("listen: %q is not an IP address", host)
		}
		if ip4 := ip.To4(); ip4 != nil {
			addr := &unix.SockaddrInet4{Port: port}
			copy(addr.Addr[:], ip4)
			sockaddr = addr
		} else {
			family = unix.AF_INET6
			addr := &unix.SockaddrInet6{Port: port}
			copy(addr.Addr[:], ip.To16())
			sockaddr = addr
		}
	}
	if fd, err = unix.Socket(family, unix.SOCK_STREAM, 0); err != nil {
		return -1, err
	}
	unix.CloseOnExec(fd)
	if err = SetReuseAddr(fd); err == nil {
		if err = unix.SetNonblock(fd, true); err == nil {
			if err = unix.Bind(fd, sockaddr); err == nil {
				err = unix.Listen(fd, backlog)
			}
		}
	}
	if err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func SetReuseAddr(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
}

// Accept returns a non-blocking client socket, or ErrAgain if none is pending.
func Accept(fd int) (int, string, error) {
	for {
		conn, sockaddr, err := unix.Accept(fd)
		if err == unix.EINTR || err == unix.ECONNABORTED {
			continue
		}
		if err != nil {
			return -1, "", againOr(err)
		}
		unix.CloseOnExec(conn)
		if err := unix.SetNonblock(conn, true); err != nil {
			unix.Close(conn)
			return -1, "", err
		}
		return conn, addrString(sockaddr), nil
	}
}

// LocalPort returns the port a socket is bound to.
func LocalPort(fd int) (int, error) {
	sockaddr, err := unix.Getsockname(fd)
	if err != nil {
		return 0, err
	}
	switch addr := sockaddr.(type) {
	case *unix.SockaddrInet4:
		return addr.Port, nil
	case *unix.SockaddrInet6:
		return addr.Port, nil
	}
	return 0, fmt.Errorf("not an inet socket")
}

func addrString(sockaddr unix.Sockaddr) string {
	switch addr := sockaddr.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(addr.Addr[:]).String(), strconv.Itoa(addr.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(addr.Addr[:]).String(), strconv.Itoa(addr.Port))
	}
	return ""
}
