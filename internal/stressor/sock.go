package stressor

import (
	"net"

	"github.com/loadbreaker/loadbreaker/internal/registry"
)

// Sock implements a loopback TCP echo workload (§3 class network).
type Sock struct {
	base
	msgBytes int
}

func NewSock() *Sock { return &Sock{msgBytes: 256} }

func (s *Sock) Supported(string) error { return nil }

func (s *Sock) Help() []registry.HelpLine {
	return []registry.HelpLine{{Opt: "--sock-bytes N", Text: "message size per bogo-op"}}
}

// Run opens a loopback listener, connects to itself, and ping-pongs
// fixed-size messages, exercising the network stack without depending
// on an external peer.
func (s *Sock) Run(args *registry.Args) registry.ExitCode {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		*args.CI.RunOK = false
		*args.CI.CounterReady = true
		return registry.NoResource
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		*args.CI.RunOK = false
		*args.CI.CounterReady = true
		return registry.NoResource
	}
	defer conn.Close()

	server, ok := <-accepted
	if !ok || server == nil {
		*args.CI.RunOK = false
		*args.CI.CounterReady = true
		return registry.NoResource
	}
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, s.msgBytes)
		for {
			n, err := server.Read(buf)
			if err != nil {
				return
			}
			if _, err := server.Write(buf[:n]); err != nil {
				return
			}
		}
	}()

	msg := make([]byte, s.msgBytes)
	reply := make([]byte, s.msgBytes)
	code := runLoop(args, func() error {
		if _, err := conn.Write(msg); err != nil {
			return err
		}
		_, err := conn.Read(reply)
		return err
	})

	conn.Close()
	server.Close()
	<-done
	return code
}
